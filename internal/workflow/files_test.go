package workflow

import (
	"io"
	"strings"
	"testing"

	"github.com/gigflow/backend/internal/apperr"
	"github.com/gigflow/backend/internal/events"
	"github.com/gigflow/backend/internal/models"
	"github.com/gigflow/backend/internal/store"
)

func upload(name, content string) FileUpload {
	return FileUpload{Name: name, ContentType: "text/plain", Content: strings.NewReader(content)}
}

func readAll(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(b)
}

func TestUploadFile(t *testing.T) {
	f := setup(t)
	client, freelancer, project, _ := f.contracted()

	file, err := f.engine.UploadFile(f.ctx, freelancer, project.ID, nil, upload("../../etc/notes.txt", "hello"))
	if err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	if file.FileName != "notes.txt" {
		t.Errorf("FileName = %q, expected notes.txt", file.FileName)
	}
	if file.Size != 5 || file.ProjectID != project.ID || file.MilestoneID != nil {
		t.Errorf("file = %+v", file)
	}

	meta, rc, err := f.engine.OpenFile(f.ctx, client, file.ID)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if meta.ID != file.ID {
		t.Errorf("ID = %d, expected %d", meta.ID, file.ID)
	}
	if got := readAll(t, rc); got != "hello" {
		t.Errorf("content = %q, expected hello", got)
	}

	evts := f.events.Events()
	if len(evts) != 1 || evts[0].Type != events.FileUploaded {
		t.Errorf("events = %v, expected one file.uploaded", eventTypes(evts))
	}
}

func TestUploadFile_Authorization(t *testing.T) {
	f := setup(t)
	client := f.actor(models.RoleClient)
	project := f.project(client)
	bidder := f.actor(models.RoleFreelancer)
	f.proposal(bidder, project.ID, 200)

	// a pending bidder is not yet a party
	_, err := f.engine.UploadFile(f.ctx, bidder, project.ID, nil, upload("a.txt", "x"))
	expectKind(t, err, apperr.KindForbidden)

	_, err = f.engine.UploadFile(f.ctx, f.actor(models.RoleClient), project.ID, nil, upload("a.txt", "x"))
	expectKind(t, err, apperr.KindForbidden)

	_, err = f.engine.UploadFile(f.ctx, client, 999, nil, upload("a.txt", "x"))
	expectKind(t, err, apperr.KindNotFound)

	if _, err := f.engine.UploadFile(f.ctx, client, project.ID, nil, upload("brief.txt", "brief")); err != nil {
		t.Fatalf("owner upload: %v", err)
	}
}

func TestUploadFile_Validation(t *testing.T) {
	f := setup(t)
	client := f.actor(models.RoleClient)
	project := f.project(client)

	_, err := f.engine.UploadFile(f.ctx, client, project.ID, nil, upload("  ", "x"))
	expectKind(t, err, apperr.KindValidation)
	expectField(t, err, "file_name")

	_, err = f.engine.UploadFile(f.ctx, client, project.ID, nil, upload("big.bin", strings.Repeat("x", 2048)))
	expectKind(t, err, apperr.KindValidation)
	expectField(t, err, "file")

	if n := f.count(&models.File{}, store.Where("1 = 1")); n != 0 {
		t.Errorf("files = %d, expected none", n)
	}
}

func TestUploadFile_NoStorage(t *testing.T) {
	f := setup(t, WithStorage(nil))
	client := f.actor(models.RoleClient)
	project := f.project(client)

	_, err := f.engine.UploadFile(f.ctx, client, project.ID, nil, upload("a.txt", "x"))
	expectKind(t, err, apperr.KindConflict)
}

func TestUploadFile_ToMilestone(t *testing.T) {
	f := setup(t)
	client, freelancer, project, contract := f.contracted()
	m, err := f.engine.CreateMilestone(f.ctx, client, contract.ID, CreateMilestoneInput{Description: "Draft"})
	if err != nil {
		t.Fatalf("CreateMilestone: %v", err)
	}

	file, err := f.engine.UploadFile(f.ctx, freelancer, project.ID, &m.ID, upload("draft.txt", "draft"))
	if err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	if file.MilestoneID == nil || *file.MilestoneID != m.ID {
		t.Errorf("MilestoneID = %v, expected %d", file.MilestoneID, m.ID)
	}

	other := f.project(client)
	_, err = f.engine.UploadFile(f.ctx, freelancer, other.ID, &m.ID, upload("draft.txt", "draft"))
	expectKind(t, err, apperr.KindValidation)
	expectField(t, err, "milestone_id")
}

func TestAttachMilestoneFile_Replaces(t *testing.T) {
	f := setup(t)
	client, freelancer, _, contract := f.contracted()
	m, err := f.engine.CreateMilestone(f.ctx, client, contract.ID, CreateMilestoneInput{Description: "Logo"})
	if err != nil {
		t.Fatalf("CreateMilestone: %v", err)
	}

	_, first, err := f.engine.AttachMilestoneFile(f.ctx, freelancer, m.ID, upload("logo-v1.png", "v1"))
	if err != nil {
		t.Fatalf("first attach: %v", err)
	}
	got, second, err := f.engine.AttachMilestoneFile(f.ctx, freelancer, m.ID, upload("logo-v2.png", "v2"))
	if err != nil {
		t.Fatalf("second attach: %v", err)
	}

	if got.FileID == nil || *got.FileID != second.ID {
		t.Errorf("FileID = %v, expected %d", got.FileID, second.ID)
	}
	if got.FileName == nil || *got.FileName != "logo-v2.png" {
		t.Errorf("FileName = %v, expected logo-v2.png", got.FileName)
	}
	_, err = f.engine.GetFile(f.ctx, client, first.ID)
	expectKind(t, err, apperr.KindNotFound)
	if _, err := f.engine.blobs.Open(f.ctx, first.StorageKey); err == nil {
		t.Error("replaced contents should be removed")
	}
	if n := f.count(&models.File{}, store.Where("milestone_id = ?", m.ID)); n != 1 {
		t.Errorf("files on milestone = %d, expected 1", n)
	}
}

func TestAttachMilestoneFile_Forbidden(t *testing.T) {
	f := setup(t)
	client, _, _, contract := f.contracted()
	m, err := f.engine.CreateMilestone(f.ctx, client, contract.ID, CreateMilestoneInput{Description: "Logo"})
	if err != nil {
		t.Fatalf("CreateMilestone: %v", err)
	}

	_, _, err = f.engine.AttachMilestoneFile(f.ctx, f.actor(models.RoleFreelancer), m.ID, upload("x.txt", "x"))
	expectKind(t, err, apperr.KindForbidden)

	_, _, err = f.engine.AttachMilestoneFile(f.ctx, client, 999, upload("x.txt", "x"))
	expectKind(t, err, apperr.KindNotFound)
}

func TestDetachMilestoneFile(t *testing.T) {
	f := setup(t)
	client, freelancer, _, contract := f.contracted()
	m, err := f.engine.CreateMilestone(f.ctx, client, contract.ID, CreateMilestoneInput{Description: "Report"})
	if err != nil {
		t.Fatalf("CreateMilestone: %v", err)
	}

	_, err = f.engine.DetachMilestoneFile(f.ctx, client, m.ID)
	expectKind(t, err, apperr.KindNotFound)

	_, file, err := f.engine.AttachMilestoneFile(f.ctx, freelancer, m.ID, upload("report.txt", "numbers"))
	if err != nil {
		t.Fatalf("AttachMilestoneFile: %v", err)
	}
	got, err := f.engine.DetachMilestoneFile(f.ctx, client, m.ID)
	if err != nil {
		t.Fatalf("DetachMilestoneFile: %v", err)
	}
	if got.FileID != nil || got.FileName != nil {
		t.Errorf("milestone still references a file: %+v", got)
	}
	_, err = f.engine.GetFile(f.ctx, client, file.ID)
	expectKind(t, err, apperr.KindNotFound)
}

func TestDeleteFile_ClearsMilestone(t *testing.T) {
	f := setup(t)
	client, freelancer, project, contract := f.contracted()
	m, err := f.engine.CreateMilestone(f.ctx, client, contract.ID, CreateMilestoneInput{Description: "Assets"})
	if err != nil {
		t.Fatalf("CreateMilestone: %v", err)
	}
	_, file, err := f.engine.AttachMilestoneFile(f.ctx, freelancer, m.ID, upload("assets.zip", "zip"))
	if err != nil {
		t.Fatalf("AttachMilestoneFile: %v", err)
	}

	err = f.engine.DeleteFile(f.ctx, f.actor(models.RoleFreelancer), file.ID)
	expectKind(t, err, apperr.KindForbidden)

	if err := f.engine.DeleteFile(f.ctx, client, file.ID); err != nil {
		t.Fatalf("DeleteFile: %v", err)
	}
	got, err := f.engine.GetMilestone(f.ctx, client, m.ID)
	if err != nil {
		t.Fatalf("GetMilestone: %v", err)
	}
	if got.FileID != nil {
		t.Errorf("FileID = %v, expected nil", *got.FileID)
	}

	page, err := f.engine.ListFiles(f.ctx, client, project.ID, FileFilter{})
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if page.Total != 0 {
		t.Errorf("Total = %d, expected 0", page.Total)
	}

	err = f.engine.DeleteFile(f.ctx, client, file.ID)
	expectKind(t, err, apperr.KindNotFound)
}

func TestListFiles(t *testing.T) {
	f := setup(t)
	client, freelancer, project, contract := f.contracted()
	m, err := f.engine.CreateMilestone(f.ctx, client, contract.ID, CreateMilestoneInput{Description: "Assets"})
	if err != nil {
		t.Fatalf("CreateMilestone: %v", err)
	}
	if _, err := f.engine.UploadFile(f.ctx, client, project.ID, nil, upload("brief.txt", "b")); err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	if _, _, err := f.engine.AttachMilestoneFile(f.ctx, freelancer, m.ID, upload("a.txt", "a")); err != nil {
		t.Fatalf("AttachMilestoneFile: %v", err)
	}

	all, err := f.engine.ListFiles(f.ctx, freelancer, project.ID, FileFilter{})
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if all.Total != 2 {
		t.Errorf("Total = %d, expected 2", all.Total)
	}
	byMilestone, err := f.engine.ListFiles(f.ctx, freelancer, project.ID, FileFilter{MilestoneID: m.ID})
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if byMilestone.Total != 1 {
		t.Errorf("Total = %d, expected 1", byMilestone.Total)
	}

	_, err = f.engine.ListFiles(f.ctx, client, 999, FileFilter{})
	expectKind(t, err, apperr.KindNotFound)
}
