package apiserver

import (
	"context"
	"net/http"
	"strings"

	"friendfeed/internal/apperrors"
	"friendfeed/internal/models"
	"friendfeed/internal/services"

	"github.com/gorilla/mux"
)

// FriendshipHandler 封装了好友关系相关的 HTTP 处理器方法。
type FriendshipHandler struct {
	friendshipService services.FriendshipService
	identity          services.IdentityDirectory
}

// NewFriendshipHandler 创建一个新的 FriendshipHandler 实例。
func NewFriendshipHandler(fs services.FriendshipService, identity services.IdentityDirectory) *FriendshipHandler {
	return &FriendshipHandler{friendshipService: fs, identity: identity}
}

// SendFriendRequestRequest 按用户名或用户ID指定目标，用户名优先。
type SendFriendRequestRequest struct {
	Username string `json:"username"`
	UserID   uint   `json:"userId"`
}

type friendsResponse struct {
	Friends []*models.FriendshipView `json:"friends"`
	Count   int                      `json:"count"`
}

type requestsResponse struct {
	Requests []*models.FriendshipView `json:"requests"`
	Count    int                      `json:"count"`
}

// SendFriendRequestHandler 处理发送好友请求。
func (h *FriendshipHandler) SendFriendRequestHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req SendFriendRequestRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	var (
		friendship *models.Friendship
		err        error
	)
	switch username := strings.TrimSpace(req.Username); {
	case username != "":
		friendship, err = h.friendshipService.SendRequestByUsername(r.Context(), userID, username)
	case req.UserID != 0:
		friendship, err = h.friendshipService.SendRequest(r.Context(), userID, req.UserID)
	default:
		err = apperrors.ErrMissingFriendshipTarget
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, friendship)
}

// AcceptFriendRequestHandler 处理接受好友请求。
func (h *FriendshipHandler) AcceptFriendRequestHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	friendshipID, ok := pathID(w, r, "friendshipID")
	if !ok {
		return
	}
	friendship, err := h.friendshipService.Accept(r.Context(), userID, friendshipID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, friendship)
}

// DeclineFriendRequestHandler 处理拒绝好友请求。
func (h *FriendshipHandler) DeclineFriendRequestHandler(w http.ResponseWriter, r *http.Request) {
	h.deleteWith(w, r, h.friendshipService.Decline)
}

// CancelFriendRequestHandler 处理撤回自己发出的好友请求。
func (h *FriendshipHandler) CancelFriendRequestHandler(w http.ResponseWriter, r *http.Request) {
	h.deleteWith(w, r, h.friendshipService.Cancel)
}

// RemoveFriendHandler 删除好友（或任一方删除待处理请求）。
func (h *FriendshipHandler) RemoveFriendHandler(w http.ResponseWriter, r *http.Request) {
	h.deleteWith(w, r, h.friendshipService.Remove)
}

func (h *FriendshipHandler) deleteWith(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, callerID, friendshipID uint) error) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	friendshipID, ok := pathID(w, r, "friendshipID")
	if !ok {
		return
	}
	if err := op(r.Context(), userID, friendshipID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListFriendsHandler 列出已接受的好友。
func (h *FriendshipHandler) ListFriendsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	friends, err := h.friendshipService.ListFriends(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, friendsResponse{Friends: friends, Count: len(friends)})
}

// ListIncomingRequestsHandler 列出别人发给当前用户的待处理请求。
func (h *FriendshipHandler) ListIncomingRequestsHandler(w http.ResponseWriter, r *http.Request) {
	h.listRequests(w, r, h.friendshipService.ListIncomingRequests)
}

// ListSentRequestsHandler 列出当前用户发出的待处理请求。
func (h *FriendshipHandler) ListSentRequestsHandler(w http.ResponseWriter, r *http.Request) {
	h.listRequests(w, r, h.friendshipService.ListSentRequests)
}

func (h *FriendshipHandler) listRequests(w http.ResponseWriter, r *http.Request, list func(ctx context.Context, userID uint) ([]*models.FriendshipView, error)) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	requests, err := list(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, requestsResponse{Requests: requests, Count: len(requests)})
}

// FriendshipStatusHandler 返回当前用户与 {username} 之间的关系。
func (h *FriendshipHandler) FriendshipStatusHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	otherID, err := h.identity.ResolveByHandle(r.Context(), mux.Vars(r)["username"])
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	status, err := h.friendshipService.GetStatus(r.Context(), userID, otherID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, status)
}
