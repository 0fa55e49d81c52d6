package leaderboard

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/okian/highscore/internal/domain/model"
)

// MemberRef is the decoded form of a ranked-set member.
type MemberRef struct {
	CreatedAt    time.Time
	SubmissionID string
	PlayerID     string
}

// MemberID encodes a submission as <created_at unix nanos>:<id>:<player_id>.
// The encoding is unique per submission, so repeat scores by one player
// occupy separate slots. The id is query-escaped so it never carries ':';
// the player id is last and may contain ':'.
func MemberID(s model.Submission) string {
	return strconv.FormatInt(s.CreatedAt.UnixNano(), 10) + ":" + url.QueryEscape(s.ID) + ":" + s.PlayerID
}

// ParseMember decodes a value produced by MemberID.
func ParseMember(member string) (MemberRef, error) {
	parts := strings.SplitN(member, ":", 3)
	if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
		return MemberRef{}, fmt.Errorf("%w: %q", ErrMalformedMember, member)
	}
	nanos, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return MemberRef{}, fmt.Errorf("%w: %q: %w", ErrMalformedMember, member, err)
	}
	id, err := url.QueryUnescape(parts[1])
	if err != nil {
		return MemberRef{}, fmt.Errorf("%w: %q: %w", ErrMalformedMember, member, err)
	}
	return MemberRef{
		CreatedAt:    time.Unix(0, nanos).UTC(),
		SubmissionID: id,
		PlayerID:     parts[2],
	}, nil
}
