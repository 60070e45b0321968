package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/blogsphere/blogsphere/internal/models"
	"github.com/blogsphere/blogsphere/internal/users"
	"github.com/blogsphere/blogsphere/pkg/errors"
	"github.com/blogsphere/blogsphere/pkg/response"
)

// UserAdminHandler serves the basic auth protected /api/sa/users routes.
type UserAdminHandler struct {
	users *users.Repository
}

func NewUserAdminHandler(repo *users.Repository) *UserAdminHandler {
	return &UserAdminHandler{users: repo}
}

type createUserRequest struct {
	Login    string `json:"login" validate:"required,notblank,min=3,max=10"`
	Password string `json:"password" validate:"required,min=6,max=20"`
	Email    string `json:"email" validate:"required,email"`
}

type userView struct {
	ID        string `json:"id"`
	Login     string `json:"login"`
	Email     string `json:"email"`
	CreatedAt string `json:"createdAt"`
}

func newUserView(user *models.User) userView {
	return userView{
		ID:        user.ID,
		Login:     user.Login,
		Email:     user.Email,
		CreatedAt: user.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// GET /api/sa/users
func (h *UserAdminHandler) List(c *gin.Context) {
	list, err := h.users.List(requestContext(c))
	if err != nil {
		response.Error(c, errors.ErrInternalServer.WithInternal(err))
		return
	}

	views := make([]userView, 0, len(list))
	for i := range list {
		views = append(views, newUserView(&list[i]))
	}
	response.Success(c, http.StatusOK, views)
}

// POST /api/sa/users
func (h *UserAdminHandler) Create(c *gin.Context) {
	var req createUserRequest
	if !bindAndValidate(c, &req) {
		return
	}

	// Accounts created by an administrator need no e-mail confirmation.
	user, err := h.users.Create(requestContext(c), users.CreateInput{
		Login:          req.Login,
		Email:          req.Email,
		Password:       req.Password,
		EmailConfirmed: true,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, newUserView(user))
}

// DELETE /api/sa/users/:id
func (h *UserAdminHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		response.Error(c, errors.NewNotFound("user not found"))
		return
	}

	if err := h.users.SoftDelete(requestContext(c), id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
