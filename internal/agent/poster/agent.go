package poster

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/youtube-agent/internal/models"
	"github.com/youtube-agent/internal/storage"
	"github.com/youtube-agent/internal/youtube"
	"github.com/youtube-agent/pkg/logger"
)

var (
	ErrAccountNotActive = errors.New("youtube account is not active")
	ErrCommentNotFound  = errors.New("comment not found")
)

// Agent posts comments to YouTube and records the outcome
type Agent struct {
	repository storage.Repository
	refresher  *youtube.TokenRefresher
	clients    *youtube.ClientFactory
	now        func() time.Time
	log        *logger.Logger
}

// NewAgent creates a new comment poster
func NewAgent(
	repository storage.Repository,
	refresher *youtube.TokenRefresher,
	clients *youtube.ClientFactory,
	log *logger.Logger,
) *Agent {
	return &Agent{
		repository: repository,
		refresher:  refresher,
		clients:    clients,
		now:        time.Now,
		log:        log.WithComponent("poster"),
	}
}

// Result contains the outcome of one post attempt. Failures are values, not errors,
// so every caller records a state transition.
type Result struct {
	CommentID uint
	Success   bool
	YouTubeID string
	Err       error
}

// Message returns the failure message, or an empty string on success
func (r *Result) Message() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

func failed(id uint, err error) *Result {
	return &Result{CommentID: id, Err: err}
}

// Post submits the comment through its account's YouTube client
func (a *Agent) Post(ctx context.Context, commentID uint) *Result {
	log := a.log.WithCommentID(commentID)

	comment, err := a.repository.GetCommentByID(ctx, commentID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return failed(commentID, fmt.Errorf("%w: id %d", ErrCommentNotFound, commentID))
		}
		return failed(commentID, fmt.Errorf("failed to load comment: %w", err))
	}

	account := comment.Account
	if account == nil {
		account, err = a.repository.GetAccountByID(ctx, comment.AccountID)
		if err != nil {
			return failed(commentID, fmt.Errorf("failed to load account: %w", err))
		}
	}

	if !account.IsActive() {
		return failed(commentID, fmt.Errorf("%w: account is %s", ErrAccountNotActive, account.Status))
	}

	if _, err := a.refresher.RefreshIfNeeded(ctx, account, false); err != nil {
		return failed(commentID, err)
	}

	client, err := a.clients.New(ctx, account)
	if err != nil {
		return failed(commentID, err)
	}

	youtubeID, err := client.InsertComment(ctx, comment.VideoID, comment.ParentID, comment.Content)
	if err != nil {
		if youtube.IsQuotaError(err) {
			log.Warn().Err(err).Uint("account_id", account.ID).Msg("Quota exceeded, marking account limited")
			if serr := a.repository.UpdateAccountStatus(ctx, account.ID, models.AccountStatusLimited); serr != nil {
				log.Error().Err(serr).Msg("Failed to update account status")
			}
			return failed(commentID, fmt.Errorf("%w: %w", youtube.ErrQuotaExceeded, err))
		}
		log.Error().Err(err).Str("video_id", comment.VideoID).Msg("Failed to post comment")
		return failed(commentID, err)
	}

	if err := a.repository.RecordAccountUsage(ctx, account.ID, a.now()); err != nil {
		log.Warn().Err(err).Msg("Failed to update daily usage")
	}

	log.Info().
		Str("video_id", comment.VideoID).
		Str("youtube_id", youtubeID).
		Msg("Comment posted successfully")

	return &Result{CommentID: commentID, Success: true, YouTubeID: youtubeID}
}

// Record applies the result to the comment and saves it
func (a *Agent) Record(ctx context.Context, comment *models.Comment, result *Result) error {
	if result.Success {
		comment.MarkPosted(result.YouTubeID, a.now())
	} else {
		comment.MarkFailed(result.Message())
	}
	comment.Account = nil

	if err := a.repository.UpdateComment(ctx, comment); err != nil {
		return fmt.Errorf("failed to save comment %d: %w", comment.ID, err)
	}
	return nil
}

// PostAndRecord posts the comment and persists the outcome
func (a *Agent) PostAndRecord(ctx context.Context, comment *models.Comment) (*Result, error) {
	result := a.Post(ctx, comment.ID)

	// Reload so fields changed elsewhere since creation are not overwritten.
	// A comment deleted in the meantime keeps no record of the attempt.
	fresh, err := a.repository.GetCommentByID(ctx, comment.ID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		a.log.WithCommentID(comment.ID).Info().Msg("Comment deleted before its result was recorded")
		return result, fmt.Errorf("comment %d: %w", comment.ID, storage.ErrNotFound)
	case err == nil:
		*comment = *fresh
	}

	if err := a.Record(ctx, comment, result); err != nil {
		return result, err
	}
	return result, nil
}

// ProcessDueComments posts scheduled comments whose time has come
func (a *Agent) ProcessDueComments(ctx context.Context, batch int) (int, []error) {
	comments, err := a.repository.ClaimDueComments(ctx, a.now(), batch)
	if err != nil {
		return 0, []error{err}
	}

	var errs []error
	posted := 0

	for _, comment := range comments {
		result, err := a.PostAndRecord(ctx, comment)
		if err != nil {
			errs = append(errs, fmt.Errorf("comment %d: %w", comment.ID, err))
			continue
		}
		if result.Success {
			posted++
		} else {
			errs = append(errs, fmt.Errorf("comment %d: %w", comment.ID, result.Err))
		}
	}

	if len(comments) > 0 {
		a.log.Info().
			Int("due", len(comments)).
			Int("posted", posted).
			Msg("Processed due comments")
	}

	return posted, errs
}

// Retry re-attempts a failed comment owned by the user
func (a *Agent) Retry(ctx context.Context, userID, commentID uint) (*models.Comment, *Result, error) {
	comment, err := a.repository.GetUserComment(ctx, userID, commentID)
	if err != nil {
		return nil, nil, err
	}
	if !comment.CanRetry() {
		return comment, nil, fmt.Errorf("only failed comments can be retried, comment is %s", comment.Status)
	}

	comment.Status = models.CommentStatusPending
	comment.Account = nil
	if err := a.repository.UpdateComment(ctx, comment); err != nil {
		return nil, nil, fmt.Errorf("failed to update comment: %w", err)
	}

	result, err := a.PostAndRecord(ctx, comment)
	if err != nil {
		return nil, nil, err
	}
	return comment, result, nil
}
