package workflow

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/gigflow/backend/internal/apperr"
	"github.com/gigflow/backend/internal/audit"
	"github.com/gigflow/backend/internal/authz"
	"github.com/gigflow/backend/internal/models"
	"github.com/gigflow/backend/internal/store"
	"github.com/gigflow/backend/internal/utils"
)

type RegisterInput struct {
	Name     string      `json:"name" binding:"required"`
	Email    string      `json:"email" binding:"required"`
	Password string      `json:"password" binding:"required"`
	Role     models.Role `json:"role" binding:"required"`
}

func (in *RegisterInput) normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	if in.Name == "" {
		return apperr.Validation("name", "name is required")
	}
	if _, err := mail.ParseAddress(in.Email); err != nil || !strings.Contains(in.Email, "@") {
		return apperr.Validation("email", "email is not a valid address")
	}
	if err := utils.ValidatePassword(in.Password); err != nil {
		return apperr.Validation("password", err.Error())
	}
	role, ok := models.ParseRole(string(in.Role))
	if !ok {
		return apperr.Validation("role", "role must be one of ADMIN, CLIENT, FREELANCER")
	}
	in.Role = role
	return nil
}

// RegisterUser creates an account. Anyone may register as CLIENT or
// FREELANCER; ADMIN accounts are created by an admin or the system.
func (e *Engine) RegisterUser(ctx context.Context, actor authz.Actor, in RegisterInput) (_ *models.User, err error) {
	defer e.observe("register_user", &err)()

	if err := in.normalize(); err != nil {
		return nil, err
	}
	if in.Role == models.RoleAdmin && !actor.IsAdmin() && actor.Role != models.RoleSystem {
		return nil, apperr.Forbidden("only an admin may create admin accounts")
	}

	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{Name: in.Name, Email: in.Email, Password: hash, Role: in.Role}
	err = e.store.Transaction(ctx, func(tx *store.Store) error {
		var existing models.User
		err := tx.First(ctx, &existing, store.Where("email = ?", in.Email))
		if err == nil {
			return apperr.Validation("email", "email is already registered")
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if err := tx.Create(ctx, user); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return apperr.Validation("email", "email is already registered")
			}
			return err
		}
		return audit.Write(ctx, tx, audit.Entry{
			EntityType: "user",
			EntityID:   user.ID,
			Action:     "user.register",
			To:         string(user.Role),
			ActorID:    actor.ID,
			ActorRole:  actor.Role,
		})
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Authenticate checks credentials. Unknown email and wrong password are
// reported identically as Forbidden.
func (e *Engine) Authenticate(ctx context.Context, email, password string) (_ *models.User, err error) {
	defer e.observe("authenticate", &err)()

	var user models.User
	err = e.store.First(ctx, &user, store.Where("email = ?", strings.ToLower(strings.TrimSpace(email))))
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Forbidden("invalid email or password")
	}
	if err != nil {
		return nil, err
	}
	if !utils.CheckPassword(password, user.Password) {
		return nil, apperr.Forbidden("invalid email or password")
	}
	return &user, nil
}

// VerifyAccount confirms that the subject of a token still exists and holds
// the role the token was issued for. Tokens outlive deletions and role
// changes, so the HTTP layer calls this on every authenticated request.
func (e *Engine) VerifyAccount(ctx context.Context, actor authz.Actor) (err error) {
	defer e.observe("verify_account", &err)()

	if actor.Role == models.RoleSystem {
		return nil
	}
	if err := requireActor(actor); err != nil {
		return err
	}
	user, err := store.Load[models.User](ctx, e.store, actor.ID)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.Forbidden("account no longer exists")
	}
	if err != nil {
		return err
	}
	if user.Role != actor.Role {
		return apperr.Forbidden("account role has changed, please sign in again")
	}
	return nil
}

func (e *Engine) GetUser(ctx context.Context, actor authz.Actor, id uint) (_ *models.User, err error) {
	defer e.observe("get_user", &err)()

	if err := requireActor(actor); err != nil {
		return nil, err
	}
	return load[models.User](ctx, e.store, "user", id)
}

type UserFilter struct {
	Role     string `form:"role"`
	Search   string `form:"search"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}

func (e *Engine) ListUsers(ctx context.Context, actor authz.Actor, f UserFilter) (_ *Page[models.User], err error) {
	defer e.observe("list_users", &err)()

	if err := e.authz.Authorize(ctx, actor, authz.UsersManage, 0); err != nil {
		return nil, err
	}

	q := store.Where("1 = 1")
	if f.Role != "" {
		role, ok := models.ParseRole(f.Role)
		if !ok {
			return nil, apperr.Validation("role", "unknown role")
		}
		q = q.And("role = ?", role)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		q = q.And("(name LIKE ? OR email LIKE ?)", "%"+s+"%", "%"+s+"%")
	}
	return list[models.User](ctx, e.store, q, f.Page, f.PageSize)
}

func (e *Engine) DeleteUser(ctx context.Context, actor authz.Actor, id uint) (err error) {
	defer e.observe("delete_user", &err)()

	if err := e.authz.Authorize(ctx, actor, authz.UsersManage, 0); err != nil {
		return err
	}
	if id == actor.ID {
		return apperr.Validation("id", "you cannot delete your own account")
	}

	return e.store.Transaction(ctx, func(tx *store.Store) error {
		if err := tx.Delete(ctx, &models.User{}, id); err != nil {
			return notFound(err, "user", id)
		}
		return audit.Write(ctx, tx, audit.Entry{
			EntityType: "user",
			EntityID:   id,
			Action:     "user.delete",
			ActorID:    actor.ID,
			ActorRole:  actor.Role,
		})
	})
}
