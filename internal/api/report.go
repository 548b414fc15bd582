package api

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"pulseroom/internal/auth"
	"pulseroom/pkg/interfaces"
	"pulseroom/pkg/types"
)

// ChartBucket counts reactions sharing one moment.
type ChartBucket struct {
	Time      string `json:"time"`
	Happy     int    `json:"happy"`
	Confused  int    `json:"confused"`
	Surprised int    `json:"surprised"`
	Sad       int    `json:"sad"`
}

func (b *ChartBucket) add(kind types.ReactionKind) {
	switch kind {
	case types.ReactionHappy:
		b.Happy++
	case types.ReactionConfused:
		b.Confused++
	case types.ReactionSurprised:
		b.Surprised++
	case types.ReactionSad:
		b.Sad++
	}
}

// ReportData summarizes one room after (or during) the session.
type ReportData struct {
	RoomCode          string        `json:"roomCode"`
	Name              string        `json:"name"`
	Description       string        `json:"description"`
	ChartData         []ChartBucket `json:"chartData"`
	TotalParticipants int           `json:"totalParticipants"`
	StartTime         time.Time     `json:"startTime"`
	EndTime           *time.Time    `json:"endTime"`
	DurationMinutes   *int          `json:"durationMinutes"`
}

// FUNCTIONAL DISCOVERY: GET /api/report/{roomCode} - only the room's own teacher may read it
func (s *Server) report(w http.ResponseWriter, r *http.Request) {
	cred, ok := auth.CredentialFromContext(r.Context())
	if !ok {
		s.sendError(w, "Authentication required", http.StatusUnauthorized)
		return
	}
	if !cred.IsTeacher() {
		s.sendError(w, "Access denied. Teachers only.", http.StatusForbidden)
		return
	}

	roomCode := mux.Vars(r)["roomCode"]
	ctx := r.Context()

	room, err := s.store.FindRoomByID(ctx, cred.RoomID)
	if errors.Is(err, interfaces.ErrRoomNotFound) {
		s.sendError(w, "Room not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("Failed to load room %d for report: %v", cred.RoomID, err)
		s.sendError(w, "Server error", http.StatusInternalServerError)
		return
	}
	if room.Code != roomCode {
		s.sendError(w, "Access denied. Teachers only.", http.StatusForbidden)
		return
	}

	feedback, err := s.store.ListFeedback(ctx, room.ID)
	if err != nil {
		log.Printf("Failed to load feedback for room %s: %v", room.Code, err)
		s.sendError(w, "Server error", http.StatusInternalServerError)
		return
	}
	members, err := s.store.ListAll(ctx, room.ID)
	if err != nil {
		log.Printf("Failed to load members for room %s: %v", room.Code, err)
		s.sendError(w, "Server error", http.StatusInternalServerError)
		return
	}

	data := ReportData{
		RoomCode:          room.Code,
		Name:              room.Name,
		Description:       room.Description,
		ChartData:         BuildChart(feedback),
		TotalParticipants: len(members),
		StartTime:         room.StartTime,
		EndTime:           room.EndTime,
	}
	if room.EndTime != nil {
		minutes := int(room.EndTime.Sub(room.StartTime) / time.Minute)
		data.DurationMinutes = &minutes
	}

	s.sendJSON(w, http.StatusOK, Response{Detail: "Success", Data: data})
}

// BuildChart groups feedback into MM:SS buckets in moment order. Feedback
// must already be sorted by moment.
func BuildChart(feedback []*types.Feedback) []ChartBucket {
	chart := make([]ChartBucket, 0)
	index := make(map[string]int)

	for _, f := range feedback {
		label := MomentLabel(f.MomentOfFeedback)
		i, exists := index[label]
		if !exists {
			i = len(chart)
			index[label] = i
			chart = append(chart, ChartBucket{Time: label})
		}
		chart[i].add(f.Kind)
	}
	return chart
}

// MomentLabel renders seconds as zero-padded MM:SS. Minutes keep growing
// past 99.
func MomentLabel(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
