package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/slothunter/internal/detector"
	"github.com/technosupport/slothunter/internal/protocol"
	"github.com/technosupport/slothunter/internal/store"
)

func TestCheckNow_ReachesDetector(t *testing.T) {
	f := newFixture(t)
	f.activate(t)
	ctx := context.Background()

	unsub, err := f.router.Attach(f.bus)
	require.NoError(t, err)
	defer unsub()

	ind := &detector.MemoryIndicator{}
	det := detector.New(detector.Options{
		ID:        "vfs",
		Page:      detector.NewStaticPage("https://visa.vfsglobal.com/gbr/en/prt/book-appointment", `<html><body><p>Next available appointment on 15-03-2025</p></body></html>`),
		Keywords:  []string{"vfsglobal"},
		Bus:       f.bus,
		Gate:      f.lic,
		Clock:     f.clock,
		Indicator: ind,
	})
	unsubDet, err := det.Attach(f.bus)
	require.NoError(t, err)
	defer unsubDet()

	resp := f.router.Dispatch(ctx, protocol.Message{Type: protocol.CheckNow})
	require.True(t, resp.Success)

	assert.Eventually(t, func() bool {
		var n int
		ok, err := f.store.Get(ctx, store.KeySlotsFound, &n)
		return err == nil && ok && n == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "🎯 1 SLOT FOUND! - 15-03-2025", ind.Text())
}
