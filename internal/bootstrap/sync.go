// Package bootstrap assembles the collaborators shared by the api and worker
// binaries.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/AnatolyKozmin/Shend/internal/repository"
	"github.com/AnatolyKozmin/Shend/internal/service"
	"github.com/AnatolyKozmin/Shend/pkg/config"
	"github.com/AnatolyKozmin/Shend/pkg/database"
	"github.com/AnatolyKozmin/Shend/pkg/sheets"
)

// Sync holds everything needed to run availability sync passes.
type Sync struct {
	Layout  *config.AvailabilityLayout
	Sheets  *sheets.Client
	Auth    *service.AuthService
	Service *service.SyncService
	Slots   *repository.SlotRepository
	Roster  *repository.InterviewerRepository
}

// NewSync loads the availability layout, connects to Sheets and wires the
// importer and reconciler behind a SyncService.
func NewSync(ctx context.Context, cfg *config.Config, db *sqlx.DB, rdb *redis.Client, metrics *service.MetricsService, logger *zap.Logger) (*Sync, error) {
	layout, err := config.LoadLayout(cfg.Sheets.LayoutFile)
	if err != nil {
		return nil, err
	}
	client, err := sheets.New(ctx, cfg.Sheets, logger.Named("sheets"))
	if err != nil {
		return nil, fmt.Errorf("init sheets client: %w", err)
	}

	auth := service.NewAuthService(service.AuthConfig{
		Secret:       cfg.Operator.JWTSecret,
		Issuer:       cfg.Operator.JWTIssuer,
		KeyHashes:    cfg.Operator.KeyHashes,
		SystemUserID: cfg.Operator.SystemUserID,
	})

	slots := repository.NewSlotRepository(db)
	roster := repository.NewInterviewerRepository(db)
	importer := service.NewAvailabilityImporter(client, layout, logger.Named("importer"))
	reconciler := service.NewReconcileService(database.NewTransactor(db), slots, roster, metrics, logger.Named("reconcile"))
	state := repository.NewSyncStateRepository(rdb, logger)
	svc := service.NewSyncService(importer, reconciler, state, service.CapabilityAuthorizer{}, metrics, cfg.Sync.LockTTL, logger.Named("sync"))

	return &Sync{
		Layout:  layout,
		Sheets:  client,
		Auth:    auth,
		Service: svc,
		Slots:   slots,
		Roster:  roster,
	}, nil
}

// Tracks returns the tracks the periodic worker syncs: the configured list, or
// every track of the layout when none is configured.
func (s *Sync) Tracks(cfg *config.Config) []string {
	if len(cfg.Sync.Tracks) > 0 {
		return cfg.Sync.Tracks
	}
	return s.Layout.TrackNames()
}
