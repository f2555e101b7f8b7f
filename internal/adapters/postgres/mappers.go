package postgres

import (
	"strings"

	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/domain"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/ports"
)

func toDomainContest(m contestModel) domain.Contest {
	var languages []domain.Language
	for _, raw := range strings.Split(m.Languages, ",") {
		if lang := domain.NormalizeLanguage(raw); lang != "" {
			languages = append(languages, lang)
		}
	}
	return domain.Contest{
		ContestID: m.ContestID, Slug: m.Slug, Title: m.Title, StartAt: m.StartAt, EndAt: m.EndAt,
		Languages: languages, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt,
	}
}

func toDomainMember(m memberModel) domain.Member {
	return domain.Member{
		MemberID: m.MemberID, ContestID: m.ContestID, Type: domain.MemberType(m.Type),
		Name: m.Name, Login: m.Login, CreatedAt: m.CreatedAt,
	}
}

func toDomainProblem(m problemModel) domain.Problem {
	return domain.Problem{
		ProblemID: m.ProblemID, ContestID: m.ContestID, Letter: m.Letter, Title: m.Title, TimeLimitMS: m.TimeLimitMS,
	}
}

func toDomainAttachment(m attachmentModel) domain.Attachment {
	return domain.Attachment{
		AttachmentID: m.AttachmentID, MemberID: m.MemberID, ContestID: m.ContestID, Filename: m.Filename,
		ContentType: m.ContentType, Content: m.Content, CreatedAt: m.CreatedAt,
	}
}

func toDomainSubmission(m submissionModel) domain.Submission {
	return domain.Submission{
		SubmissionID: m.SubmissionID, ContestID: m.ContestID, MemberID: m.MemberID, ProblemID: m.ProblemID,
		CodeAttachmentID: m.CodeAttachmentID, Language: domain.Language(m.Language),
		Status: domain.SubmissionStatus(m.Status), Answer: domain.SubmissionAnswer(m.Answer),
		CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt,
	}
}

func toSubmissionModel(s domain.Submission) submissionModel {
	return submissionModel{
		SubmissionID: s.SubmissionID, ContestID: s.ContestID, MemberID: s.MemberID, ProblemID: s.ProblemID,
		CodeAttachmentID: s.CodeAttachmentID, Language: string(s.Language), Status: string(s.Status),
		Answer: string(s.Answer), CreatedAt: s.CreatedAt, UpdatedAt: s.UpdatedAt,
	}
}

func toOutboxModel(event ports.OutboxEvent) submissionOutboxModel {
	return submissionOutboxModel{
		OutboxID:         event.EventID,
		EventType:        event.EventType,
		PartitionKey:     event.PartitionKey,
		PartitionKeyPath: event.PartitionKeyPath,
		Payload:          string(event.Payload),
		SchemaVersion:    event.SchemaVersion,
		TraceID:          event.TraceID,
		CreatedAt:        event.OccurredAt,
		FirstSeenAt:      event.OccurredAt,
	}
}
