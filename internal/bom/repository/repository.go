package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/bitfantasy/nimo-bom/internal/bom/entity"
	"github.com/bitfantasy/nimo-bom/internal/costing"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	ErrNotFound    = costing.ErrNotFound
	ErrUnavailable = costing.ErrUnavailable
)

// AutoMigrate 建表，withFX 为 false 时不创建汇率表
func AutoMigrate(ctx context.Context, db *gorm.DB, withFX bool) error {
	models := []interface{}{
		&entity.Item{},
		&entity.Supplier{},
		&entity.BOM{},
		&entity.BOMLine{},
		&entity.VendorLink{},
		&entity.VendorPrice{},
	}
	if withFX {
		models = append(models, &entity.FXRate{})
	}
	if err := db.WithContext(ctx).AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// translate 将 gorm/pg 错误转换为仓储哨兵错误
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if isUnavailable(err) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}

// isUnavailable 连接类错误：08 连接异常、53 资源不足、57 运维干预
func isUnavailable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if len(pgErr.Code) < 2 {
			return false
		}
		switch pgErr.Code[:2] {
		case "08", "53", "57":
			return true
		}
		return false
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, driver.ErrBadConn)
}
