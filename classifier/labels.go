package classifier

import "strings"

// Labels is the canonical label table sent with every scoring request.
// Probabilities come back positionally, so reordering this slice without
// updating the index constants below silently breaks admission.
var Labels = []string{
	"a doodle of a flower",
	"a sketch of a flower",
	"artwork with flowers",
	"a doodle of a penis",
	"a doodle",
	"a doodle of an object",
	"a swastika",
	"handwriting",
	"text",
	"the word flower",
}

const (
	labelFlowerDoodle = iota
	labelFlowerSketch
	labelFlowerArtwork
	labelPenisDoodle
	labelDoodle
	labelObjectDoodle
	labelSwastika
	labelHandwriting
	labelText
	labelWordFlower
)

var flowerLabels = []int{labelFlowerDoodle, labelFlowerSketch, labelFlowerArtwork}

var disallowedLabels = map[int]struct{}{
	labelSwastika:    {},
	labelHandwriting: {},
	labelText:        {},
	labelWordFlower:  {},
}

// Admission thresholds. These are deployment constants, never request input.
const (
	FlowerThreshold   = 0.90
	EggplantThreshold = 0.95
)

// LabelText is the pipe-joined label list expected by scoring backends.
func LabelText() string {
	return strings.Join(Labels, " | ")
}
