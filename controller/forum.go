package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"github.com/reputation-systems/forum-application/erg"
	"github.com/reputation-systems/forum-application/forum"
	"github.com/reputation-systems/forum-application/logger"
	"github.com/reputation-systems/forum-application/services/discussion"
	"github.com/reputation-systems/forum-application/state"
)

const (
	// HeaderContentType is the Content-Type header key.
	HeaderContentType = "Content-Type"
	// ContentTypeJSON is the application/json MIME type.
	ContentTypeJSON = "application/json"

	maxBodyBytes = 64 << 10
)

// Forum is the part of the discussion service the api exposes.
type Forum interface {
	State() *state.ForumState
	Links() forum.Links
	SelectDiscussion(ctx context.Context, id string) error
	PostComment(ctx context.Context, text string, sentiment bool) (forum.Comment, error)
	ReplyToComment(ctx context.Context, parentId, text string, sentiment bool) (forum.Comment, error)
	FlagSpam(ctx context.Context, targetId string) (string, error)
	CommentScore(id string) (int, bool)
	SpamCount(ctx context.Context, id string) (int, bool, error)
	LoadProfile(ctx context.Context) (*forum.ReputationProof, error)
	CreateProfile(ctx context.Context) (string, error)
	Reputation(tokenId, target string) (float64, error)
}

type commentRequest struct {
	Text      string `json:"text"`
	Sentiment bool   `json:"sentiment"`
}

// scoredComment is a comment with its score, replies included.
type scoredComment struct {
	forum.Comment
	Score   int             `json:"score"`
	Replies []scoredComment `json:"replies"`
}

func scored(comments []forum.Comment) []scoredComment {
	out := make([]scoredComment, len(comments))
	for i, c := range comments {
		out[i] = scoredComment{
			Comment: c,
			Score:   forum.Score(c),
			Replies: scored(c.Replies),
		}
	}
	return out
}

func cors(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func opts() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		cors(w)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.WriteHeader(http.StatusOK)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set(HeaderContentType, ContentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("failed to write response", zap.Error(err))
	}
}

// statusOf maps service errors onto http status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, forum.ErrProfileNotFound):
		return http.StatusNotFound
	case errors.Is(err, forum.ErrBoxLocked), errors.Is(err, forum.ErrInsufficientBalance):
		return http.StatusConflict
	case errors.Is(err, discussion.ErrNoWallet):
		return http.StatusPreconditionFailed
	case errors.Is(err, discussion.ErrProofNotFound):
		return http.StatusNotFound
	case errors.Is(err, erg.ErrFetchFailed), errors.Is(err, forum.ErrSubmissionFailed):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeOpError reports a failed write operation. A missing profile means one
// was just submitted, so the caller is told to wait instead of failing.
func writeOpError(w http.ResponseWriter, err error) {
	if errors.Is(err, forum.ErrProfileNotFound) {
		writeJSON(w, http.StatusAccepted, map[string]string{"error": err.Error()})
		return
	}
	writeError(w, statusOf(err), err)
}

func decodeComment(w http.ResponseWriter, r *http.Request) (commentRequest, error) {
	var body commentRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		return body, fmt.Errorf("invalid request body - %s", err.Error())
	}
	if body.Text == "" {
		return body, errors.New("comment text is empty")
	}
	return body, nil
}

func called(r *http.Request, caller string, fields logger.Fields) time.Time {
	if fields == nil {
		fields = logger.Fields{}
	}
	fields[logger.Caller] = caller
	fields[logger.URL] = r.URL.Path
	fields[logger.RemoteAddr] = r.RemoteAddr
	zap.L().Debug(caller+" called", fields.Zap()...)
	return time.Now()
}

func done(start time.Time, caller string, err error, fields logger.Fields) {
	if fields == nil {
		fields = logger.Fields{}
	}
	fields[logger.Caller] = caller
	fields[logger.DurationMs] = time.Since(start).Milliseconds()
	if err != nil {
		fields["err"] = err
		zap.L().Error(caller+" failed", fields.Zap()...)
		return
	}
	zap.L().Info(caller+" complete", fields.Zap()...)
}

func Threads(svc Forum) httprouter.Handle {
	type Results struct {
		Discussion string          `json:"discussion"`
		Loading    bool            `json:"loading"`
		Error      string          `json:"error"`
		Threads    []scoredComment `json:"threads"`
	}

	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		cors(w)
		called(r, "threads", nil)

		st := svc.State()
		writeJSON(w, http.StatusOK, Results{
			Discussion: st.Discussion.Get(),
			Loading:    st.Loading.Get(),
			Error:      st.Error.Get(),
			Threads:    scored(st.Threads.Get()),
		})
	}
}

func SelectDiscussion(svc Forum) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
		cors(w)
		id := params.ByName("id")
		start := called(r, "selectDiscussion", logger.Fields{logger.Discussion: id})

		err := svc.SelectDiscussion(r.Context(), id)
		done(start, "selectDiscussion", err, logger.Fields{logger.Discussion: id})
		if err != nil {
			writeError(w, statusOf(err), err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func PostComment(svc Forum) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		cors(w)
		start := called(r, "postComment", nil)

		body, err := decodeComment(w, r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		c, err := svc.PostComment(r.Context(), body.Text, body.Sentiment)
		done(start, "postComment", err, logger.Fields{logger.TxId: c.Tx})
		if err != nil {
			writeOpError(w, err)
			return
		}

		writeJSON(w, http.StatusAccepted, c)
	}
}

func ReplyToComment(svc Forum) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
		cors(w)
		parent := params.ByName("id")
		start := called(r, "replyToComment", logger.Fields{logger.Pointer: parent})

		body, err := decodeComment(w, r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		c, err := svc.ReplyToComment(r.Context(), parent, body.Text, body.Sentiment)
		done(start, "replyToComment", err, logger.Fields{logger.Pointer: parent, logger.TxId: c.Tx})
		if err != nil {
			writeOpError(w, err)
			return
		}

		writeJSON(w, http.StatusAccepted, c)
	}
}

func FlagSpam(svc Forum) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
		cors(w)
		target := params.ByName("id")
		start := called(r, "flagSpam", logger.Fields{logger.Pointer: target})

		txId, err := svc.FlagSpam(r.Context(), target)
		done(start, "flagSpam", err, logger.Fields{logger.Pointer: target, logger.TxId: txId})
		if err != nil {
			writeOpError(w, err)
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]string{"tx": txId})
	}
}

func CommentScore(svc Forum) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
		cors(w)
		id := params.ByName("id")
		called(r, "commentScore", logger.Fields{logger.BoxId: id})

		score, ok := svc.CommentScore(id)
		if !ok {
			writeError(w, http.StatusNotFound, fmt.Errorf("comment %s not found", id))
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "score": score})
	}
}

func SpamCount(svc Forum) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
		cors(w)
		id := params.ByName("id")
		start := called(r, "spamCount", logger.Fields{logger.BoxId: id})

		count, spam, err := svc.SpamCount(r.Context(), id)
		done(start, "spamCount", err, logger.Fields{logger.BoxId: id})
		if err != nil {
			writeError(w, statusOf(err), err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "flags": count, "isSpam": spam})
	}
}

func Profile(svc Forum) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		cors(w)
		start := called(r, "profile", nil)

		proof, err := svc.LoadProfile(r.Context())
		done(start, "profile", err, nil)
		if err != nil {
			writeError(w, statusOf(err), err)
			return
		}

		writeJSON(w, http.StatusOK, proof)
	}
}

func CreateProfile(svc Forum) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		cors(w)
		start := called(r, "createProfile", nil)

		txId, err := svc.CreateProfile(r.Context())
		done(start, "createProfile", err, logger.Fields{logger.TxId: txId})
		if err != nil {
			writeError(w, statusOf(err), err)
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]string{"tx": txId})
	}
}

func Reputation(svc Forum) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
		cors(w)
		tokenId := params.ByName("tokenId")
		target := r.URL.Query().Get("target")
		called(r, "reputation", logger.Fields{logger.TokenId: tokenId, logger.Pointer: target})

		if target == "" {
			writeError(w, http.StatusBadRequest, errors.New("missing query parameter 'target='"))
			return
		}

		value, err := svc.Reputation(tokenId, target)
		if err != nil {
			writeError(w, statusOf(err), err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{"tokenId": tokenId, "target": target, "reputation": value})
	}
}

func Link(svc Forum) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
		cors(w)
		kind, id := params.ByName("kind"), params.ByName("id")
		called(r, "link", nil)

		url, err := svc.Links().Resolve(kind, id)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"url": url})
	}
}
