package client

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/zlnvch/garden/canvas"
	"github.com/zlnvch/garden/classifier"
	"github.com/zlnvch/garden/logging"
	"github.com/zlnvch/garden/models"
	"go.uber.org/zap"
)

var ErrSubmissionInProgress = errors.New("a submission is already being processed")

type Rejection int

const (
	NotRejected Rejection = iota
	RejectedCapture
	RejectedQuota
	RejectedQuotaServer
	RejectedError
	RejectedContent
	RejectedPersistence
)

func (r Rejection) String() string {
	switch r {
	case NotRejected:
		return "none"
	case RejectedCapture:
		return "capture"
	case RejectedQuota:
		return "quota"
	case RejectedQuotaServer:
		return "quota-server"
	case RejectedError:
		return "error"
	case RejectedContent:
		return "content"
	case RejectedPersistence:
		return "persistence"
	}
	return "unknown"
}

// Outcome is the terminal state of one submission attempt.
type Outcome struct {
	Rejection Rejection
	Category  models.Category
	URL       string
	Result    classifier.Result
	// CurrentCount is the server count on a quota rejection
	CurrentCount int
	Err          error
}

func (o Outcome) Accepted() bool {
	return o.Rejection == NotRejected
}

func accepted(category models.Category, url string, result classifier.Result) Outcome {
	return Outcome{Category: category, URL: url, Result: result}
}

func rejected(kind Rejection, err error) Outcome {
	return Outcome{Rejection: kind, Err: err}
}

// Controller drives one drawing from the surface to the server. Submissions
// are sequential: Submit fails fast while another one is running.
type Controller struct {
	surface *canvas.Surface
	gateway Gateway
	counter LocalCounter
	busy    atomic.Bool
}

func NewController(surface *canvas.Surface, gateway Gateway, counter LocalCounter) *Controller {
	return &Controller{
		surface: surface,
		gateway: gateway,
		counter: counter,
	}
}

func (c *Controller) Busy() bool {
	return c.busy.Load()
}

// Submit exports the current drawing and runs it through admission. The
// surface is disabled while the attempt runs and is left cleared whatever
// the outcome.
func (c *Controller) Submit(ctx context.Context) (Outcome, error) {
	if !c.busy.CompareAndSwap(false, true) {
		return Outcome{}, ErrSubmissionInProgress
	}
	defer c.busy.Store(false)

	c.surface.SetEnabled(false)
	defer func() {
		c.surface.Clear()
		c.surface.SetEnabled(true)
	}()

	count, err := c.counter.Count()
	if err != nil {
		logging.Logger.Warn("Failed to read local flower count", zap.Error(err))
	}
	if count >= models.FlowerQuota {
		return Outcome{Rejection: RejectedQuota, CurrentCount: count}, nil
	}

	artifact, err := c.surface.Export()
	if err != nil {
		return rejected(RejectedCapture, err), nil
	}
	c.surface.Clear()

	png, err := artifact.PNG()
	if err != nil {
		return rejected(RejectedCapture, err), nil
	}
	dataURI, err := artifact.DataURI()
	if err != nil {
		return rejected(RejectedCapture, err), nil
	}

	result, err := c.gateway.Classify(ctx, dataURI)
	if err != nil {
		logging.Logger.Error("Classification failed", zap.Error(err))
		return rejected(RejectedError, err), nil
	}

	verdict := result.Verdict()
	category, ok := verdict.Category()
	if !ok {
		out := rejected(RejectedContent, nil)
		out.Result = result
		return out, nil
	}

	url, err := c.gateway.Submit(ctx, category, png, result.Confidence())
	if err != nil {
		var quotaErr *QuotaExceededError
		if errors.As(err, &quotaErr) {
			// Stop retrying locally once the server says no
			if err := c.counter.Set(max(quotaErr.CurrentCount, models.FlowerQuota)); err != nil {
				logging.Logger.Warn("Failed to store local flower count", zap.Error(err))
			}
			out := rejected(RejectedQuotaServer, err)
			out.Result = result
			out.CurrentCount = quotaErr.CurrentCount
			return out, nil
		}

		logging.Logger.Error("Submission failed",
			zap.String("category", string(category)),
			zap.Error(err))
		out := rejected(RejectedPersistence, err)
		out.Result = result
		return out, nil
	}

	if category == models.CategoryFlowers {
		if _, err := c.counter.Increment(); err != nil {
			logging.Logger.Warn("Failed to store local flower count", zap.Error(err))
		}
	}

	logging.Logger.Info("Drawing accepted",
		zap.String("category", string(category)),
		zap.Float64("confidence", result.Confidence()),
		zap.String("url", url))

	return accepted(category, url, result), nil
}
