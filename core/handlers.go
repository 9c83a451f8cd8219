package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/jackc/pgerrcode"
)

// Request payloads. Every field is required; a missing one fails decoding.

type getAuthRequest struct {
	Name *string `json:"name" binding:"required"`
}

type createAuthRequest struct {
	Name       *string `json:"name" binding:"required"`
	Password   *string `json:"password" binding:"required"`
	Privileges *string `json:"privileges" binding:"required"`
}

type setPasswordRequest struct {
	Name     *string `json:"name" binding:"required"`
	Password *string `json:"password" binding:"required"`
}

type setPrivilegesRequest struct {
	Name       *string `json:"name" binding:"required"`
	Privileges *string `json:"privileges" binding:"required"`
}

type recordLoginRequest struct {
	Name      *string  `json:"name" binding:"required"`
	LastLogin *float64 `json:"last_login" binding:"required"`
}

// CommandHandlers serves the five credential commands against a CredentialStore.
type CommandHandlers struct {
	store CredentialStore
}

func NewCommandHandlers(store CredentialStore) *CommandHandlers {
	return &CommandHandlers{store: store}
}

// Handle returns the gin handler for cmd. It must run after TenantAuth.
// Any decode or store failure becomes a 500; nothing propagates past the request.
func (h *CommandHandlers) Handle(cmd Command) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant, ok := tenantFrom(c)
		if !ok {
			respondText(c, http.StatusUnauthorized, "Unauthorized")
			return
		}

		// Once started, a command runs to completion even if the client goes away.
		ctx := context.WithoutCancel(c.Request.Context())

		var err error
		switch cmd {
		case CommandGetAuth:
			err = h.getAuth(ctx, c, tenant)
		case CommandCreateAuth:
			err = h.createAuth(ctx, c, tenant)
		case CommandSetPassword:
			err = h.setPassword(ctx, c)
		case CommandSetPrivileges:
			err = h.setPrivileges(ctx, c, tenant)
		case CommandRecordLogin:
			err = h.recordLogin(ctx, c)
		default:
			err = fmt.Errorf("unhandled command %d", cmd)
		}
		if err != nil {
			internalError(c, cmd.String(), err)
		}
	}
}

// decodeRequest accepts exactly one JSON document. Anything after it, even
// whitespace-separated, fails the request.
func decodeRequest(c *gin.Context, obj any) error {
	raw, err := c.GetRawData()
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if err := json.Unmarshal(raw, obj); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	if err := binding.Validator.ValidateStruct(obj); err != nil {
		return fmt.Errorf("validate request body: %w", err)
	}
	return nil
}

func (h *CommandHandlers) getAuth(ctx context.Context, c *gin.Context, tenant TenantID) error {
	var req getAuthRequest
	if err := decodeRequest(c, &req); err != nil {
		return err
	}

	row, err := h.store.GetAuth(ctx, tenant, *req.Name)
	if errors.Is(err, ErrNoMembership) {
		respondText(c, http.StatusNotFound, "")
		return nil
	}
	if err != nil {
		return err
	}

	body, err := json.Marshal(row.Record())
	if err != nil {
		return fmt.Errorf("encode auth record: %w", err)
	}
	respondBytes(c, http.StatusOK, contentTypeJSON, body)
	return nil
}

func (h *CommandHandlers) createAuth(ctx context.Context, c *gin.Context, tenant TenantID) error {
	var req createAuthRequest
	if err := decodeRequest(c, &req); err != nil {
		return err
	}

	err := h.store.CreateAuth(ctx, tenant, *req.Name, *req.Password, *req.Privileges)
	if hasPgCode(err, pgerrcode.UniqueViolation) {
		return fmt.Errorf("player %q is already registered: %w", *req.Name, err)
	}
	if err != nil {
		return err
	}

	log.Printf("[%s] tenant=%d registered player %q", CommandCreateAuth, tenant, *req.Name)
	respondText(c, http.StatusOK, "")
	return nil
}

// setPassword changes the global password. It is not tenant-scoped: the new
// password is what every tenant without an override sees.
func (h *CommandHandlers) setPassword(ctx context.Context, c *gin.Context) error {
	var req setPasswordRequest
	if err := decodeRequest(c, &req); err != nil {
		return err
	}

	n, err := h.store.SetPassword(ctx, *req.Name, *req.Password)
	if err != nil {
		return err
	}
	logNoMatch(CommandSetPassword, n, *req.Name)
	respondText(c, http.StatusOK, "")
	return nil
}

func (h *CommandHandlers) setPrivileges(ctx context.Context, c *gin.Context, tenant TenantID) error {
	var req setPrivilegesRequest
	if err := decodeRequest(c, &req); err != nil {
		return err
	}

	n, err := h.store.SetPrivileges(ctx, tenant, *req.Name, *req.Privileges)
	if err != nil {
		return err
	}
	logNoMatch(CommandSetPrivileges, n, *req.Name)
	respondText(c, http.StatusOK, "")
	return nil
}

// recordLogin, like setPassword, updates the player globally.
func (h *CommandHandlers) recordLogin(ctx context.Context, c *gin.Context) error {
	var req recordLoginRequest
	if err := decodeRequest(c, &req); err != nil {
		return err
	}

	n, err := h.store.RecordLogin(ctx, *req.Name, FormatLastLogin(*req.LastLogin))
	if err != nil {
		return err
	}
	logNoMatch(CommandRecordLogin, n, *req.Name)
	respondText(c, http.StatusOK, "")
	return nil
}

// logNoMatch notes updates that touched nothing. They still answer 200.
func logNoMatch(cmd Command, affected int64, name string) {
	if affected == 0 {
		log.Printf("[%s] no rows matched player %q", cmd, name)
	}
}
