package client

import (
	"sync"
	"time"

	"github.com/zlnvch/garden/models"
)

const (
	CaptionDefault       = "Add a flower to our garden? "
	CaptionNotAFlower    = "That's not a flower. Try again? "
	CaptionEggplant      = "Ummm... O.o what's that? "
	CaptionEggplantSpeed = "I guess this is more your speed? "
	CaptionQuota         = "You've reached the maximum of 10 flowers. Thank you for contributing!"

	RejectRevertDelay = 5 * time.Second
	EggplantDelay     = 2 * time.Second
)

// View is what the presentation layer renders: a caption and which garden
// is on display.
type View struct {
	Caption string
	Garden  models.Category
}

// Presenter turns outcomes into caption changes. Timed follow-ups replace
// each other, so only the latest outcome's follow-up fires.
type Presenter struct {
	mu       sync.Mutex
	view     View
	timer    *time.Timer
	onChange func(View)

	revertDelay   time.Duration
	eggplantDelay time.Duration
}

func NewPresenter(onChange func(View)) *Presenter {
	return NewPresenterWithDelays(onChange, RejectRevertDelay, EggplantDelay)
}

func NewPresenterWithDelays(onChange func(View), revertDelay, eggplantDelay time.Duration) *Presenter {
	if onChange == nil {
		onChange = func(View) {}
	}
	return &Presenter{
		view:          View{Caption: CaptionDefault, Garden: models.CategoryFlowers},
		onChange:      onChange,
		revertDelay:   revertDelay,
		eggplantDelay: eggplantDelay,
	}
}

func (p *Presenter) View() View {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.view
}

func (p *Presenter) Apply(o Outcome) {
	switch {
	case o.Accepted() && o.Category == models.CategoryEggplants:
		p.set(View{Caption: CaptionEggplant, Garden: p.View().Garden})
		p.after(p.eggplantDelay, View{Caption: CaptionEggplantSpeed, Garden: models.CategoryEggplants})
	case o.Accepted():
		p.set(View{Caption: p.View().Caption, Garden: o.Category})
	case o.Rejection == RejectedContent:
		garden := p.View().Garden
		p.set(View{Caption: CaptionNotAFlower, Garden: garden})
		p.after(p.revertDelay, View{Caption: CaptionDefault, Garden: garden})
	case o.Rejection == RejectedQuota || o.Rejection == RejectedQuotaServer:
		p.set(View{Caption: CaptionQuota, Garden: p.View().Garden})
	}
	// Errors leave the view unchanged
}

// Stop cancels any pending follow-up.
func (p *Presenter) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

func (p *Presenter) set(v View) {
	p.mu.Lock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.view = v
	onChange := p.onChange
	p.mu.Unlock()

	onChange(v)
}

func (p *Presenter) after(d time.Duration, v View) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var t *time.Timer
	t = time.AfterFunc(d, func() {
		p.mu.Lock()
		if p.timer != t {
			p.mu.Unlock()
			return
		}
		p.timer = nil
		p.view = v
		onChange := p.onChange
		p.mu.Unlock()

		onChange(v)
	})
	p.timer = t
}
