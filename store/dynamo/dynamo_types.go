package dynamo

import (
	"strconv"
	"time"

	"github.com/zlnvch/garden/models"
)

func submissionPK(category models.Category) string {
	return "SUBMISSION#" + string(category)
}

type dynamoSubmission struct {
	PK               string  `dynamodbav:"PK"`
	SK               string  `dynamodbav:"SK"`
	Category         string  `dynamodbav:"Category"`
	Filename         string  `dynamodbav:"Filename"`
	ImageURL         string  `dynamodbav:"ImageURL"`
	Confidence       float64 `dynamodbav:"Confidence"`
	Submitter        string  `dynamodbav:"Submitter"`
	Created          int64   `dynamodbav:"Created"`
	ManualModeration *bool   `dynamodbav:"ManualModeration,omitempty"`
}

// Map domain Submission -> Dynamo
func submissionToDynamo(s models.Submission) dynamoSubmission {
	return dynamoSubmission{
		PK:               submissionPK(s.Category),
		SK:               s.Id,
		Category:         string(s.Category),
		Filename:         s.Filename,
		ImageURL:         s.ImageURL,
		Confidence:       s.Confidence,
		Submitter:        s.Submitter,
		Created:          s.Created.UnixMilli(),
		ManualModeration: s.ManualModeration,
	}
}

// Map Dynamo -> domain Submission
func submissionFromDynamo(ds dynamoSubmission) models.Submission {
	return models.Submission{
		Id:               ds.SK,
		Category:         models.Category(ds.Category),
		Filename:         ds.Filename,
		ImageURL:         ds.ImageURL,
		Confidence:       ds.Confidence,
		Submitter:        ds.Submitter,
		Created:          time.UnixMilli(ds.Created).UTC(),
		ManualModeration: ds.ManualModeration,
	}
}

const orphanPK = "ORPHAN"

type dynamoOrphan struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	Category  string `dynamodbav:"Category"`
	Filename  string `dynamodbav:"Filename"`
	URL       string `dynamodbav:"URL"`
	Submitter string `dynamodbav:"Submitter"`
	Reported  int64  `dynamodbav:"Reported"`
}

// SK sorts by report time; the filename keeps it unique.
func orphanToDynamo(o models.Orphan) dynamoOrphan {
	return dynamoOrphan{
		PK:        orphanPK,
		SK:        strconv.FormatInt(o.Reported.UnixMilli(), 10) + "#" + o.Filename,
		Category:  string(o.Category),
		Filename:  o.Filename,
		URL:       o.URL,
		Submitter: o.Submitter,
		Reported:  o.Reported.UnixMilli(),
	}
}

func orphanFromDynamo(do dynamoOrphan) models.Orphan {
	return models.Orphan{
		Category:  models.Category(do.Category),
		Filename:  do.Filename,
		URL:       do.URL,
		Submitter: do.Submitter,
		Reported:  time.UnixMilli(do.Reported).UTC(),
	}
}

const statsPK = "STATS"

type dynamoStats struct {
	PK       string `dynamodbav:"PK"`
	SK       string `dynamodbav:"SK"`
	Accepted int    `dynamodbav:"Accepted"`
	Rejected int    `dynamodbav:"Rejected"`
}

type dynamoModerator struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	Id         string `dynamodbav:"Id"`
	Provider   string `dynamodbav:"Provider"`
	ProviderId string `dynamodbav:"ProviderId"`
	Username   string `dynamodbav:"Username"`
	Created    int64  `dynamodbav:"Created"`
}

func moderatorPK(provider, providerId string) string {
	return "MODERATOR#" + provider + "#" + providerId
}

func moderatorToDynamo(m models.Moderator) dynamoModerator {
	return dynamoModerator{
		PK:         moderatorPK(m.Provider, m.ProviderId),
		SK:         "PROFILE",
		Id:         m.Id,
		Provider:   m.Provider,
		ProviderId: m.ProviderId,
		Username:   m.Username,
	}
}

func moderatorFromDynamo(dm dynamoModerator) models.Moderator {
	return models.Moderator{
		Id:         dm.Id,
		Username:   dm.Username,
		Provider:   dm.Provider,
		ProviderId: dm.ProviderId,
	}
}
