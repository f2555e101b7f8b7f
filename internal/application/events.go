package application

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/domain"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/ports"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/session"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/topics"
)

const (
	eventSchemaVersion    = "1.0"
	eventPartitionKeyPath = "data.submission_id"
)

// EventEnvelope is the wire shape of every submission event, on Kafka and
// on the fanout channel alike.
type EventEnvelope struct {
	EventID          string              `json:"event_id"`
	EventType        string              `json:"event_type"`
	OccurredAt       string              `json:"occurred_at"`
	SourceService    string              `json:"source_service"`
	TraceID          string              `json:"trace_id"`
	SchemaVersion    string              `json:"schema_version"`
	PartitionKeyPath string              `json:"partition_key_path"`
	PartitionKey     string              `json:"partition_key"`
	Data             SubmissionEventData `json:"data"`
}

type SubmissionEventData struct {
	SubmissionID     string   `json:"submission_id"`
	ContestID        string   `json:"contest_id"`
	MemberID         string   `json:"member_id"`
	ProblemID        string   `json:"problem_id"`
	CodeAttachmentID string   `json:"code_attachment_id"`
	Language         string   `json:"language"`
	Status           string   `json:"status"`
	Answer           string   `json:"answer"`
	CreatedAt        string   `json:"created_at"`
	UpdatedAt        string   `json:"updated_at"`
	Topics           []string `json:"topics"`
}

// submissionEvents builds one outbox record per event type, in order, all
// sharing the submission id as partition key.
func (s *Service) submissionEvents(sc session.Context, submission domain.Submission, types ...domain.SubmissionEventType) ([]ports.OutboxEvent, error) {
	occurredAt := s.nowFn()
	data := SubmissionEventData{
		SubmissionID:     submission.SubmissionID.String(),
		ContestID:        submission.ContestID.String(),
		MemberID:         submission.MemberID.String(),
		ProblemID:        submission.ProblemID.String(),
		CodeAttachmentID: submission.CodeAttachmentID.String(),
		Language:         string(submission.Language),
		Status:           string(submission.Status),
		Answer:           string(submission.Answer),
		CreatedAt:        submission.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:        submission.UpdatedAt.Format(time.RFC3339Nano),
		Topics:           topics.SubmissionTopics(submission.ContestID, submission.MemberID),
	}
	out := make([]ports.OutboxEvent, 0, len(types))
	for _, eventType := range types {
		eventID := uuid.New()
		payload, err := json.Marshal(EventEnvelope{
			EventID:          eventID.String(),
			EventType:        string(eventType),
			OccurredAt:       occurredAt.Format(time.RFC3339Nano),
			SourceService:    s.cfg.ServiceName,
			TraceID:          sc.TraceID,
			SchemaVersion:    eventSchemaVersion,
			PartitionKeyPath: eventPartitionKeyPath,
			PartitionKey:     data.SubmissionID,
			Data:             data,
		})
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", eventType, err)
		}
		out = append(out, ports.OutboxEvent{
			EventID:          eventID,
			EventType:        string(eventType),
			PartitionKey:     data.SubmissionID,
			PartitionKeyPath: eventPartitionKeyPath,
			Payload:          payload,
			OccurredAt:       occurredAt,
			SchemaVersion:    eventSchemaVersion,
			TraceID:          sc.TraceID,
		})
	}
	return out, nil
}

// DecodeSubmissionEvent parses an envelope produced by the outbox.
func DecodeSubmissionEvent(payload []byte) (domain.SubmissionEvent, error) {
	var env EventEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return domain.SubmissionEvent{}, fmt.Errorf("%w: invalid submission event payload", domain.ErrInvalidInput)
	}
	eventID, err := uuid.Parse(env.EventID)
	if err != nil {
		return domain.SubmissionEvent{}, fmt.Errorf("%w: invalid event_id", domain.ErrInvalidInput)
	}
	ids := make([]uuid.UUID, 5)
	for i, raw := range []string{env.Data.SubmissionID, env.Data.ContestID, env.Data.MemberID, env.Data.ProblemID, env.Data.CodeAttachmentID} {
		if ids[i], err = uuid.Parse(raw); err != nil {
			return domain.SubmissionEvent{}, fmt.Errorf("%w: invalid id %q in event %s", domain.ErrInvalidInput, raw, env.EventID)
		}
	}
	occurredAt, _ := time.Parse(time.RFC3339Nano, env.OccurredAt)
	createdAt, _ := time.Parse(time.RFC3339Nano, env.Data.CreatedAt)
	updatedAt, _ := time.Parse(time.RFC3339Nano, env.Data.UpdatedAt)
	return domain.SubmissionEvent{
		EventID: eventID,
		Type:    domain.SubmissionEventType(env.EventType),
		Submission: domain.Submission{
			SubmissionID:     ids[0],
			ContestID:        ids[1],
			MemberID:         ids[2],
			ProblemID:        ids[3],
			CodeAttachmentID: ids[4],
			Language:         domain.Language(env.Data.Language),
			Status:           domain.SubmissionStatus(env.Data.Status),
			Answer:           domain.SubmissionAnswer(env.Data.Answer),
			CreatedAt:        createdAt,
			UpdatedAt:        updatedAt,
		},
		TopicPaths: env.Data.Topics,
		TraceID:    env.TraceID,
		OccurredAt: occurredAt,
	}, nil
}
