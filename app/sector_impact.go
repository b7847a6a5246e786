package app

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	models "ohmystock/database/models_pkg"
	"ohmystock/database/types"
)

const (
	sectorLookback  = 24 * time.Hour
	sectorMaxStocks = 10
)

// SectorSource provides the reference and snapshot reads the sector impact
// builder needs
type SectorSource interface {
	SameSector(sector string, exclude uuid.UUID, limit int) ([]models.Stock, error)
	LatestSince(stockID uuid.UUID, since time.Time) (*models.PriceSnapshot, error)
}

// SectorImpactBuilder summarizes how the trigger stock's sector peers moved
// over the last day. Best effort enrichment: the synthesizer treats a nil
// result as "no sector context".
type SectorImpactBuilder struct {
	source SectorSource
	now    func() time.Time
}

// NewSectorImpactBuilder creates a sector impact builder
func NewSectorImpactBuilder(source SectorSource) *SectorImpactBuilder {
	return &SectorImpactBuilder{source: source, now: time.Now}
}

// Build returns the sector movement summary for a stock, or nil when the
// stock has no sector or no peers with recent snapshots.
func (b *SectorImpactBuilder) Build(stock *models.Stock) (*types.SectorImpact, error) {
	if stock.Sector == "" {
		return nil, nil
	}

	peers, err := b.source.SameSector(stock.Sector, stock.ID, sectorMaxStocks)
	if err != nil {
		return nil, fmt.Errorf("sector peers: %w", err)
	}
	if len(peers) == 0 {
		return nil, nil
	}

	since := b.now().Add(-sectorLookback)
	related := make([]types.RelatedStockChange, 0, len(peers))
	risers := 0
	for _, peer := range peers {
		snap, err := b.source.LatestSince(peer.ID, since)
		if err != nil {
			return nil, fmt.Errorf("sector snapshot: %w", err)
		}
		if snap == nil {
			continue
		}
		related = append(related, types.RelatedStockChange{
			Name:      peer.Name,
			Code:      peer.Code,
			ChangePct: snap.ChangePct,
		})
		if snap.ChangePct > 0 {
			risers++
		}
	}

	if len(related) == 0 {
		return nil, nil
	}

	return &types.SectorImpact{
		Sector:          stock.Sector,
		RelatedStocks:   related,
		CorrelationNote: correlationNote(risers, len(related)),
	}, nil
}

func correlationNote(risers, total int) string {
	switch {
	case risers == total:
		return "entire sector moved up together"
	case risers == 0:
		return "entire sector moved down together"
	case risers*2 >= total:
		return fmt.Sprintf("%d of %d sector peers rose", risers, total)
	default:
		return fmt.Sprintf("%d of %d sector peers fell", total-risers, total)
	}
}
