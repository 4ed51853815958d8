package jobs

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/yungbote/docuchat-backend/internal/repos"
	"github.com/yungbote/docuchat-backend/internal/repos/testutil"
	"github.com/yungbote/docuchat-backend/internal/types"
)

func TestEnqueueFollowsCallerTransaction(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	repo := repos.NewIngestJobRepo(db, log)
	queue := NewQueue(db, log, repo, nil)
	ctx := context.Background()

	payload := types.IngestPDFPayload{
		ChatID:         1,
		DocumentID:     2,
		FileKey:        "uploads/chat_1/report.pdf",
		FileName:       "report.pdf",
		MimeType:       "application/pdf",
		SizeBytes:      2048,
		CollectionName: "chat_1_0_report_pdf",
	}

	// A rolled-back transaction must leave no job behind.
	tx := db.Begin()
	if tx.Error != nil {
		t.Fatalf("begin: %v", tx.Error)
	}
	job, err := queue.Enqueue(ctx, tx, types.JobNameIngestPDF, payload)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := tx.Rollback().Error; err != nil {
		t.Fatalf("rollback: %v", err)
	}
	got, err := repo.GetByID(ctx, nil, job.ID)
	if err != nil {
		t.Fatalf("get after rollback: %v", err)
	}
	if got != nil {
		t.Fatalf("rolled-back enqueue must not persist, got %+v", got)
	}

	// Inside a live transaction the job is visible and queued.
	tx2 := testutil.Tx(t, db)
	job2, err := queue.Enqueue(ctx, tx2, types.JobNameIngestPDF, payload)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	got2, err := repo.GetByID(ctx, tx2, job2.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got2 == nil || got2.Status != types.JobStatusQueued {
		t.Fatalf("expected a queued job, got %+v", got2)
	}

	var decoded types.IngestPDFPayload
	if err := json.Unmarshal(got2.Payload, &decoded); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if decoded != payload {
		t.Fatalf("payload round trip mismatch: %+v", decoded)
	}
}
