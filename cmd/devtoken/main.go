package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/tillstock/tillstock-backend/pkg/auth"
	"github.com/tillstock/tillstock-backend/pkg/auth/session"
	"github.com/tillstock/tillstock-backend/pkg/config"
	"github.com/tillstock/tillstock-backend/pkg/enums"
	"github.com/tillstock/tillstock-backend/pkg/logger"
	"github.com/tillstock/tillstock-backend/pkg/redis"
)

type sessionRegistrar interface {
	Register(ctx context.Context, accessID, userID string, ttl time.Duration) error
}

type mintRequest struct {
	UserID      string
	BranchID    string
	WarehouseID string
	Role        string
}

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "devtoken"})

	_ = godotenv.Load()

	var req mintRequest
	flag.StringVar(&req.UserID, "user", "", "user id (uuid); random when empty")
	flag.StringVar(&req.BranchID, "branch", "", "active branch id (uuid)")
	flag.StringVar(&req.WarehouseID, "warehouse", "", "active warehouse id (uuid)")
	flag.StringVar(&req.Role, "role", string(enums.MemberRoleCashier), "member role")
	skipSession := flag.Bool("no-session", false, "do not register the session in redis")
	flag.Parse()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "devtoken",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	if cfg.App.IsProd() {
		requireResource(ctx, logg, "environment", errors.New("devtoken refuses to run in prod"))
	}

	var registrar sessionRegistrar
	if !*skipSession {
		redisClient, err := redis.New(ctx, cfg.Redis, logg)
		requireResource(ctx, logg, "redis", err)
		defer redisClient.Close()

		manager, err := session.NewManager(redisClient)
		requireResource(ctx, logg, "session manager", err)
		registrar = manager
	}

	token, err := mint(ctx, cfg.JWT, time.Now().UTC(), req, registrar)
	requireResource(ctx, logg, "token", err)
	fmt.Println(token)
}

// mint signs a token and, when registrar is set, marks its jti as live for
// the token lifetime.
func mint(ctx context.Context, cfg config.JWTConfig, now time.Time, req mintRequest, registrar sessionRegistrar) (string, error) {
	userID := uuid.New()
	if strings.TrimSpace(req.UserID) != "" {
		parsed, err := uuid.Parse(strings.TrimSpace(req.UserID))
		if err != nil {
			return "", fmt.Errorf("user: %w", err)
		}
		userID = parsed
	}
	branchID, err := optionalUUID(req.BranchID)
	if err != nil {
		return "", fmt.Errorf("branch: %w", err)
	}
	warehouseID, err := optionalUUID(req.WarehouseID)
	if err != nil {
		return "", fmt.Errorf("warehouse: %w", err)
	}
	role, err := enums.ParseMemberRole(req.Role)
	if err != nil {
		return "", err
	}

	jti := uuid.NewString()
	token, err := auth.MintAccessToken(cfg, now, auth.AccessTokenPayload{
		UserID:            userID,
		ActiveBranchID:    branchID,
		ActiveWarehouseID: warehouseID,
		Role:              role,
		JTI:               jti,
	})
	if err != nil {
		return "", err
	}

	if registrar != nil {
		if err := registrar.Register(ctx, jti, userID.String(), cfg.AccessTokenTTL()); err != nil {
			return "", fmt.Errorf("register session: %w", err)
		}
	}
	return token, nil
}

func optionalUUID(raw string) (*uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
