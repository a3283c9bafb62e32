package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/man137/Ryda/internal/driver-session/core/domain/model"
	"github.com/man137/Ryda/internal/driver-session/core/ports/driven"
)

type StatusRepository struct {
	db *DataBase
}

func NewStatusRepository(db *DataBase) *StatusRepository {
	return &StatusRepository{db: db}
}

var _ driven.StatusRepository = (*StatusRepository)(nil)

// GetDriverByID loads the immutable session identity: approval flags
// and vehicle descriptors. Read once at session start.
func (r *StatusRepository) GetDriverByID(ctx context.Context, driverID string) (model.DriverIdentity, error) {
	SelectQuery := `
		SELECT first_name, last_name, is_approved, is_active, license_number, vehicle_type, license_plate
		FROM drivers
		WHERE driver_id = $1;
	`
	identity := model.DriverIdentity{DriverID: driverID}
	err := r.db.GetPool().QueryRow(ctx, SelectQuery, driverID).Scan(
		&identity.FirstName,
		&identity.LastName,
		&identity.IsApproved,
		&identity.IsActive,
		&identity.LicenseNumber,
		&identity.VehicleType,
		&identity.LicensePlate,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.DriverIdentity{}, fmt.Errorf("driver %s not found", driverID)
	}
	if err != nil {
		return model.DriverIdentity{}, err
	}
	return identity, nil
}

// SetDriverActive is the durable half of an availability toggle,
// independent of the live socket announcement.
func (r *StatusRepository) SetDriverActive(ctx context.Context, driverID string, active bool) error {
	UpdateStatusQuery := `
		UPDATE drivers
		SET status = CASE WHEN $2 THEN 'AVAILABLE' ELSE 'OFFLINE' END,
		    updated_at = NOW()
		WHERE driver_id = $1;
	`
	tag, err := r.db.GetPool().Exec(ctx, UpdateStatusQuery, driverID, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("driver %s not found", driverID)
	}
	return nil
}
