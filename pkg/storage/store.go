package storage

import (
	"errors"

	"github.com/radgate/radgate/pkg/types"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Store defines the interface for NAS registration storage.
type Store interface {
	CreateNas(rec *types.NasRecord) error
	GetNas(listenAddr, nasIP string) (*types.NasRecord, error)
	ListNas() ([]*types.NasRecord, error)
	ListNasByServer(listenAddr string) ([]*types.NasRecord, error)
	UpdateNas(rec *types.NasRecord) error
	DeleteNas(listenAddr, nasIP string) error

	Close() error
}
