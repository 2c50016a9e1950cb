package recognition

import (
	"fmt"

	"github.com/tphakala/faceattend/internal/vision"
)

// Kind tags the variant held by an Outcome.
type Kind int

const (
	// KindNoFace means the detector found nothing.
	KindNoFace Kind = iota
	// KindSpoof means the face failed the liveness check.
	KindSpoof
	// KindUnrecognized means no reference was close enough, or there are no
	// references at all.
	KindUnrecognized
	// KindMatched means the best reference passed the similarity threshold.
	KindMatched
)

func (k Kind) String() string {
	switch k {
	case KindNoFace:
		return "no_face"
	case KindSpoof:
		return "spoof"
	case KindUnrecognized:
		return "unrecognized"
	case KindMatched:
		return "matched"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Outcome is the result of processing one frame. Which fields are set
// depends on Kind:
//
//	NoFace        nothing
//	Spoof         Face, SpoofScore
//	Unrecognized  Face, Similarity (0 when there are no references)
//	Matched       Face, IdentityID, Similarity
type Outcome struct {
	Kind       Kind
	Face       *vision.Face
	IdentityID string
	Similarity float64
	SpoofScore float64
}

// NoFace returns the empty-frame outcome.
func NoFace() Outcome { return Outcome{Kind: KindNoFace} }

// Spoof returns a failed liveness outcome.
func Spoof(face *vision.Face, score float64) Outcome {
	return Outcome{Kind: KindSpoof, Face: face, SpoofScore: score}
}

// Unrecognized returns an outcome for a face without an accepted match.
func Unrecognized(face *vision.Face, similarity float64) Outcome {
	return Outcome{Kind: KindUnrecognized, Face: face, Similarity: similarity}
}

// Matched returns an accepted match for identityID.
func Matched(face *vision.Face, identityID string, similarity float64) Outcome {
	return Outcome{Kind: KindMatched, Face: face, IdentityID: identityID, Similarity: similarity}
}
