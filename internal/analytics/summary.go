// Package analytics reports attendance figures for a lecture, computed from the session
// record's participant list and connection history.
package analytics

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/aura-lms/backend/internal/models"
)

// Summary is the attendance report for one lecture.
type Summary struct {
	LectureID          uuid.UUID            `json:"lecture_id"`
	Status             models.LectureStatus `json:"status"`
	TotalJoins         int                  `json:"total_joins"`
	UniqueStudents     int                  `json:"unique_students"`
	PresentNow         int                  `json:"present_now"`
	PeakConcurrent     int                  `json:"peak_concurrent"`
	AvgWatchSeconds    int64                `json:"avg_watch_seconds"`
	LiveSeconds        int64                `json:"live_seconds"`
	TeacherDisconnects int                  `json:"teacher_disconnects"`
	Messages           int                  `json:"messages"`
}

// Summarize builds a Summary. Open participant records and an open live interval are
// counted up to now.
func Summarize(l *models.Lecture, messages int, now time.Time) Summary {
	s := Summary{
		LectureID:  l.ID,
		Status:     l.Status,
		TotalJoins: len(l.Participants),
		Messages:   messages,
	}

	students := make(map[uuid.UUID]struct{})
	present := make(map[uuid.UUID]struct{})
	var watched time.Duration
	for _, p := range l.Participants {
		end := now
		if p.LeftAt != nil {
			end = *p.LeftAt
		}
		if end.After(p.JoinedAt) {
			watched += end.Sub(p.JoinedAt)
		}
		if p.UserID == nil {
			continue
		}
		students[*p.UserID] = struct{}{}
		if p.Active() {
			present[*p.UserID] = struct{}{}
		}
	}
	s.UniqueStudents = len(students)
	s.PresentNow = len(present)
	if s.UniqueStudents > 0 {
		s.AvgWatchSeconds = int64(watched.Seconds()) / int64(s.UniqueStudents)
	}
	s.PeakConcurrent = peakConcurrent(l.Participants, now)
	s.LiveSeconds, s.TeacherDisconnects = liveTime(l.ConnectionHistory, now)
	return s
}

type edge struct {
	at    time.Time
	delta int
}

func peakConcurrent(records []models.ParticipantRecord, now time.Time) int {
	edges := make([]edge, 0, 2*len(records))
	for _, p := range records {
		edges = append(edges, edge{at: p.JoinedAt, delta: 1})
		end := now
		if p.LeftAt != nil {
			end = *p.LeftAt
		}
		edges = append(edges, edge{at: end, delta: -1})
	}
	// Leaves sort before joins at the same instant so a rejoin does not count twice.
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].at.Equal(edges[j].at) {
			return edges[i].delta < edges[j].delta
		}
		return edges[i].at.Before(edges[j].at)
	})
	cur, peak := 0, 0
	for _, e := range edges {
		cur += e.delta
		if cur > peak {
			peak = cur
		}
	}
	return peak
}

func liveTime(history []models.ConnectionEvent, now time.Time) (int64, int) {
	var (
		total       time.Duration
		since       time.Time
		live        bool
		disconnects int
	)
	for _, ev := range history {
		switch ev.Action {
		case models.ActionStart, models.ActionResume, models.ActionConnect:
			if !live {
				live, since = true, ev.Timestamp
			}
		case models.ActionDisconnect, models.ActionEnd:
			if ev.Action == models.ActionDisconnect {
				disconnects++
			}
			if live {
				total += ev.Timestamp.Sub(since)
				live = false
			}
		}
	}
	if live {
		total += now.Sub(since)
	}
	return int64(total.Seconds()), disconnects
}
