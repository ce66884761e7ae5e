package apiserver

import (
	"net/http"
	"strconv"

	"friendfeed/internal/config"
	"friendfeed/internal/services"

	"github.com/gorilla/mux"
)

// PostHandler 封装了帖子、评论和动态流的 HTTP 处理器方法。
type PostHandler struct {
	postService services.PostService
	feedService services.FeedService
	policy      config.PolicyConfig
}

// NewPostHandler 创建一个新的 PostHandler 实例。
func NewPostHandler(postService services.PostService, feedService services.FeedService, policy config.PolicyConfig) *PostHandler {
	return &PostHandler{postService: postService, feedService: feedService, policy: policy}
}

type captionRequest struct {
	Caption string `json:"caption"`
}

type commentRequest struct {
	Text string `json:"text"`
}

// GetFeedHandler 返回好友帖子的一页，参数 cursor 和 pageSize 均可选。
func (h *PostHandler) GetFeedHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	pageSize := 0
	if raw := query.Get("pageSize"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeJSONError(w, "pageSize must be an integer", http.StatusBadRequest)
			return
		}
		pageSize = n
	}

	page, err := h.feedService.GetFeed(r.Context(), userID, query.Get("cursor"), pageSize)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, page)
}

// CreatePostHandler 处理 multipart 发帖请求：字段 "image" 为图片，"caption" 为说明。
func (h *PostHandler) CreatePostHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	upload, ok := readImageUpload(w, r, "image", h.policy.MaxPostImageBytes)
	if !ok {
		return
	}
	defer upload.Close()

	post, err := h.postService.CreatePost(r.Context(), userID, services.NewPost{
		Image:     upload.file,
		ImageSize: upload.size,
		FileName:  upload.fileName,
		MimeType:  upload.mimeType,
		Caption:   r.FormValue("caption"),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, post)
}

// GetPostHandler 返回单个帖子及当前用户可见的评论。
func (h *PostHandler) GetPostHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	postID, ok := pathID(w, r, "postID")
	if !ok {
		return
	}
	post, err := h.postService.GetPost(r.Context(), userID, postID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, post)
}

// UpdatePostHandler 修改帖子说明，只有作者可以操作。
func (h *PostHandler) UpdatePostHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	postID, ok := pathID(w, r, "postID")
	if !ok {
		return
	}
	var req captionRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	post, err := h.postService.UpdateCaption(r.Context(), userID, postID, req.Caption)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, post)
}

// DeletePostHandler 删除帖子及其评论和图片。
func (h *PostHandler) DeletePostHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	postID, ok := pathID(w, r, "postID")
	if !ok {
		return
	}
	if err := h.postService.DeletePost(r.Context(), userID, postID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PostHandler) ListMyPostsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	posts, err := h.postService.ListMyPosts(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, posts)
}

func (h *PostHandler) ListUserPostsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	posts, err := h.postService.ListUserPosts(r.Context(), userID, mux.Vars(r)["username"])
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, posts)
}

func (h *PostHandler) ListCommentsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	postID, ok := pathID(w, r, "postID")
	if !ok {
		return
	}
	comments, err := h.postService.ListComments(r.Context(), userID, postID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, comments)
}

func (h *PostHandler) CreateCommentHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	postID, ok := pathID(w, r, "postID")
	if !ok {
		return
	}
	var req commentRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	comment, err := h.postService.CreateComment(r.Context(), userID, postID, req.Text)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, comment)
}

// DeleteCommentHandler 删除评论，评论作者或帖子作者均可。
func (h *PostHandler) DeleteCommentHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	commentID, ok := pathID(w, r, "commentID")
	if !ok {
		return
	}
	if err := h.postService.DeleteComment(r.Context(), userID, commentID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
