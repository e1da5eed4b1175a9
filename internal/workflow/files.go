package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gigflow/backend/internal/apperr"
	"github.com/gigflow/backend/internal/authz"
	"github.com/gigflow/backend/internal/events"
	"github.com/gigflow/backend/internal/models"
	"github.com/gigflow/backend/internal/storage"
	"github.com/gigflow/backend/internal/store"
)

// FileUpload is an incoming file. Content is read once.
type FileUpload struct {
	Name        string
	ContentType string
	Content     io.Reader
}

func (u *FileUpload) normalize() error {
	u.Name = filepath.Base(strings.TrimSpace(strings.ReplaceAll(u.Name, `\`, "/")))
	if u.Name == "" || u.Name == "." || u.Name == "/" {
		return apperr.Validation("file_name", "file name is required")
	}
	if u.Content == nil {
		return apperr.Validation("file", "file content is required")
	}
	if u.ContentType == "" {
		u.ContentType = "application/octet-stream"
	}
	return nil
}

func (e *Engine) requireStorage() error {
	if e.blobs == nil {
		return apperr.Conflict("file storage is not configured")
	}
	return nil
}

// putBlob stores the upload before any metadata is written. The caller must
// delete the returned key if the transaction that records it fails.
func (e *Engine) putBlob(ctx context.Context, u *FileUpload) (string, int64, error) {
	key, size, err := e.blobs.Put(ctx, u.Name, u.Content)
	if errors.Is(err, storage.ErrTooLarge) {
		return "", 0, apperr.Validation("file", "file exceeds the upload size limit")
	}
	if err != nil {
		return "", 0, fmt.Errorf("store file: %w", err)
	}
	return key, size, nil
}

// UploadFile stores a deliverable against a project. When milestoneID is set
// the file is attached to that milestone, replacing any previous attachment.
func (e *Engine) UploadFile(ctx context.Context, actor authz.Actor, projectID uint, milestoneID *uint, upload FileUpload) (_ *models.File, err error) {
	if milestoneID != nil {
		_, file, err := e.attach(ctx, actor, *milestoneID, &projectID, upload)
		return file, err
	}

	defer e.observe("upload_file", &err)()

	if err := e.authz.Authorize(ctx, actor, authz.FileManage, projectID); err != nil {
		return nil, err
	}
	if err := e.requireStorage(); err != nil {
		return nil, err
	}
	if err := upload.normalize(); err != nil {
		return nil, err
	}

	key, size, err := e.putBlob(ctx, &upload)
	if err != nil {
		return nil, err
	}

	file := &models.File{
		ProjectID:   projectID,
		FileName:    upload.Name,
		ContentType: upload.ContentType,
		Size:        size,
		StorageKey:  key,
		UploadedBy:  actor.ID,
	}
	c := newChange(actor)
	err = e.store.Transaction(ctx, func(tx *store.Store) error {
		if err := tx.Create(ctx, file); err != nil {
			return err
		}
		c.record("file", file.ID, projectID, "file.upload", events.FileUploaded, "", "", file.FileName)
		return c.write(ctx, tx)
	})
	if err != nil {
		e.deleteBlobs(ctx, key)
		return nil, err
	}
	e.commit(ctx, c)
	return file, nil
}

// AttachMilestoneFile uploads a file and attaches it to the milestone. An
// existing attachment is replaced and its file deleted.
func (e *Engine) AttachMilestoneFile(ctx context.Context, actor authz.Actor, milestoneID uint, upload FileUpload) (*models.Milestone, *models.File, error) {
	return e.attach(ctx, actor, milestoneID, nil, upload)
}

func (e *Engine) attach(ctx context.Context, actor authz.Actor, milestoneID uint, wantProject *uint, upload FileUpload) (_ *models.Milestone, _ *models.File, err error) {
	defer e.observe("attach_milestone_file", &err)()

	head, err := load[models.Milestone](ctx, e.store, "milestone", milestoneID)
	if err != nil {
		return nil, nil, err
	}
	if err := e.authz.Authorize(ctx, actor, authz.MilestoneManage, head.ContractID); err != nil {
		return nil, nil, err
	}
	projectID, err := e.projectOfMilestone(ctx, e.store, head)
	if err != nil {
		return nil, nil, err
	}
	if wantProject != nil && *wantProject != projectID {
		return nil, nil, apperr.Validation("milestone_id", fmt.Sprintf("milestone %d does not belong to project %d", milestoneID, *wantProject))
	}
	if err := e.requireStorage(); err != nil {
		return nil, nil, err
	}
	if err := upload.normalize(); err != nil {
		return nil, nil, err
	}

	key, size, err := e.putBlob(ctx, &upload)
	if err != nil {
		return nil, nil, err
	}

	mid := milestoneID
	file := &models.File{
		ProjectID:   projectID,
		MilestoneID: &mid,
		FileName:    upload.Name,
		ContentType: upload.ContentType,
		Size:        size,
		StorageKey:  key,
		UploadedBy:  actor.ID,
	}
	var milestone models.Milestone
	var replaced []string
	c := newChange(actor)
	err = e.withProjectLock(ctx, projectID, func() error {
		return e.store.Transaction(ctx, func(tx *store.Store) error {
			var previous []models.File
			if err := tx.Find(ctx, &previous, store.Where("milestone_id = ?", milestoneID)); err != nil {
				return err
			}
			for _, f := range previous {
				if err := tx.Delete(ctx, &models.File{}, f.ID); err != nil {
					return err
				}
				replaced = append(replaced, f.StorageKey)
				c.record("file", f.ID, projectID, "file.delete", events.FileDeleted, "", "", "replaced by new upload")
			}
			if err := tx.Create(ctx, file); err != nil {
				return err
			}
			if err := tx.Update(ctx, &milestone, milestoneID, map[string]interface{}{
				"file_id":   file.ID,
				"file_name": file.FileName,
			}); err != nil {
				return notFound(err, "milestone", milestoneID)
			}
			c.record("file", file.ID, projectID, "file.upload", events.FileUploaded, "", "", file.FileName)
			c.record("milestone", milestoneID, projectID, "milestone.attach", events.MilestoneUpdated, "", string(milestone.Status), file.FileName)
			return c.write(ctx, tx)
		})
	})
	if err != nil {
		e.deleteBlobs(ctx, key)
		return nil, nil, err
	}
	e.commit(ctx, c)
	e.deleteBlobs(ctx, replaced...)
	return &milestone, file, nil
}

// DetachMilestoneFile deletes the milestone's file and clears the association.
func (e *Engine) DetachMilestoneFile(ctx context.Context, actor authz.Actor, milestoneID uint) (_ *models.Milestone, err error) {
	defer e.observe("detach_milestone_file", &err)()

	head, err := load[models.Milestone](ctx, e.store, "milestone", milestoneID)
	if err != nil {
		return nil, err
	}
	if err := e.authz.Authorize(ctx, actor, authz.MilestoneManage, head.ContractID); err != nil {
		return nil, err
	}
	projectID, err := e.projectOfMilestone(ctx, e.store, head)
	if err != nil {
		return nil, err
	}

	var milestone models.Milestone
	var keys []string
	c := newChange(actor)
	err = e.withProjectLock(ctx, projectID, func() error {
		return e.store.Transaction(ctx, func(tx *store.Store) error {
			if err := tx.Get(ctx, &milestone, milestoneID); err != nil {
				return notFound(err, "milestone", milestoneID)
			}
			if milestone.FileID == nil {
				return apperr.NotFound("milestone %d has no file", milestoneID)
			}
			var files []models.File
			if err := tx.Find(ctx, &files, store.Where("milestone_id = ?", milestoneID)); err != nil {
				return err
			}
			for _, f := range files {
				if err := tx.Delete(ctx, &models.File{}, f.ID); err != nil {
					return err
				}
				keys = append(keys, f.StorageKey)
				c.record("file", f.ID, projectID, "file.delete", events.FileDeleted, "", "", "detached from milestone")
			}
			if err := tx.Update(ctx, &milestone, milestoneID, map[string]interface{}{"file_id": nil, "file_name": nil}); err != nil {
				return err
			}
			c.record("milestone", milestoneID, projectID, "milestone.detach", events.MilestoneUpdated, "", string(milestone.Status), "")
			return c.write(ctx, tx)
		})
	})
	if err != nil {
		return nil, err
	}
	e.commit(ctx, c)
	e.deleteBlobs(ctx, keys...)
	return &milestone, nil
}

func (e *Engine) GetFile(ctx context.Context, actor authz.Actor, id uint) (_ *models.File, err error) {
	defer e.observe("get_file", &err)()

	if err := requireActor(actor); err != nil {
		return nil, err
	}
	return load[models.File](ctx, e.store, "file", id)
}

// OpenFile returns the metadata and contents of a file. Only parties to the
// project may download it. The caller must close the reader.
func (e *Engine) OpenFile(ctx context.Context, actor authz.Actor, id uint) (_ *models.File, _ io.ReadCloser, err error) {
	defer e.observe("open_file", &err)()

	file, err := load[models.File](ctx, e.store, "file", id)
	if err != nil {
		return nil, nil, err
	}
	if err := e.authz.Authorize(ctx, actor, authz.FileManage, file.ProjectID); err != nil {
		return nil, nil, err
	}
	if err := e.requireStorage(); err != nil {
		return nil, nil, err
	}
	rc, err := e.blobs.Open(ctx, file.StorageKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, apperr.NotFound("contents of file %d are missing", id)
	}
	if err != nil {
		return nil, nil, err
	}
	return file, rc, nil
}

type FileFilter struct {
	MilestoneID uint `form:"milestone_id"`
	Page        int  `form:"page"`
	PageSize    int  `form:"page_size"`
}

func (e *Engine) ListFiles(ctx context.Context, actor authz.Actor, projectID uint, f FileFilter) (_ *Page[models.File], err error) {
	defer e.observe("list_files", &err)()

	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if _, err := load[models.Project](ctx, e.store, "project", projectID); err != nil {
		return nil, err
	}

	q := store.Where("project_id = ?", projectID)
	if f.MilestoneID != 0 {
		q = q.And("milestone_id = ?", f.MilestoneID)
	}
	return list[models.File](ctx, e.store, q, f.Page, f.PageSize)
}

// DeleteFile removes a file and clears it from its milestone, if any.
func (e *Engine) DeleteFile(ctx context.Context, actor authz.Actor, id uint) (err error) {
	defer e.observe("delete_file", &err)()

	file, err := load[models.File](ctx, e.store, "file", id)
	if err != nil {
		return err
	}
	if err := e.authz.Authorize(ctx, actor, authz.FileManage, file.ProjectID); err != nil {
		return err
	}

	c := newChange(actor)
	err = e.store.Transaction(ctx, func(tx *store.Store) error {
		if err := tx.Delete(ctx, &models.File{}, id); err != nil {
			return notFound(err, "file", id)
		}
		if file.MilestoneID != nil {
			_, err := tx.UpdateWhere(ctx, &models.Milestone{}, *file.MilestoneID,
				store.Where("file_id = ?", id),
				map[string]interface{}{"file_id": nil, "file_name": nil})
			if err != nil {
				return err
			}
		}
		c.record("file", id, file.ProjectID, "file.delete", events.FileDeleted, "", "", file.FileName)
		return c.write(ctx, tx)
	})
	if err != nil {
		return err
	}
	e.commit(ctx, c)
	e.deleteBlobs(ctx, file.StorageKey)
	return nil
}
