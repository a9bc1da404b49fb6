package client

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/zlnvch/garden/models"
)

type viewRecorder struct {
	mu    sync.Mutex
	views []View
}

func (r *viewRecorder) record(v View) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views = append(r.views, v)
}

func (r *viewRecorder) all() []View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]View(nil), r.views...)
}

func TestPresenter_Default(t *testing.T) {
	p := NewPresenter(nil)
	assert.Equal(t, View{Caption: CaptionDefault, Garden: models.CategoryFlowers}, p.View())
}

func TestPresenter_ContentRejectedReverts(t *testing.T) {
	rec := &viewRecorder{}
	p := NewPresenterWithDelays(rec.record, 20*time.Millisecond, time.Hour)
	defer p.Stop()

	p.Apply(Outcome{Rejection: RejectedContent})
	assert.Equal(t, CaptionNotAFlower, p.View().Caption)

	assert.Eventually(t, func() bool {
		return p.View().Caption == CaptionDefault
	}, time.Second, 5*time.Millisecond)

	views := rec.all()
	assert.Equal(t, []View{
		{Caption: CaptionNotAFlower, Garden: models.CategoryFlowers},
		{Caption: CaptionDefault, Garden: models.CategoryFlowers},
	}, views)
}

func TestPresenter_EggplantSwitchesGarden(t *testing.T) {
	rec := &viewRecorder{}
	p := NewPresenterWithDelays(rec.record, time.Hour, 20*time.Millisecond)
	defer p.Stop()

	p.Apply(Outcome{Category: models.CategoryEggplants})
	assert.Equal(t, View{Caption: CaptionEggplant, Garden: models.CategoryFlowers}, p.View())

	assert.Eventually(t, func() bool {
		return p.View().Garden == models.CategoryEggplants
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, CaptionEggplantSpeed, p.View().Caption)
}

func TestPresenter_LaterOutcomeCancelsFollowUp(t *testing.T) {
	p := NewPresenterWithDelays(nil, 30*time.Millisecond, time.Hour)
	defer p.Stop()

	p.Apply(Outcome{Rejection: RejectedContent})
	p.Apply(Outcome{Rejection: RejectedQuota})

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, CaptionQuota, p.View().Caption)
}

func TestPresenter_ErrorsLeaveViewUnchanged(t *testing.T) {
	rec := &viewRecorder{}
	p := NewPresenter(rec.record)

	p.Apply(Outcome{Rejection: RejectedError, Err: errors.New("offline")})
	p.Apply(Outcome{Rejection: RejectedPersistence})
	p.Apply(Outcome{Rejection: RejectedCapture})

	assert.Equal(t, CaptionDefault, p.View().Caption)
	assert.Empty(t, rec.all())
}

func TestPresenter_FlowerAcceptedKeepsCaption(t *testing.T) {
	p := NewPresenter(nil)
	p.Apply(Outcome{Category: models.CategoryFlowers, URL: "u"})

	assert.Equal(t, View{Caption: CaptionDefault, Garden: models.CategoryFlowers}, p.View())
}
