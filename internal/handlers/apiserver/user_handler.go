package apiserver

import (
	"net/http"

	"friendfeed/internal/config"
	"friendfeed/internal/services"

	"github.com/gorilla/mux"
)

// UserHandler 封装了用户资料相关的 HTTP 处理器方法。
type UserHandler struct {
	userService services.UserService
	policy      config.PolicyConfig
}

// NewUserHandler 创建一个新的 UserHandler 实例。
func NewUserHandler(userService services.UserService, policy config.PolicyConfig) *UserHandler {
	return &UserHandler{userService: userService, policy: policy}
}

// GetMyProfileHandler 处理获取当前登录用户资料的请求。
func (h *UserHandler) GetMyProfileHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	user, err := h.userService.GetProfile(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, user)
}

// UpdateMyProfileHandler 处理部分更新当前用户资料的请求，未给出的字段保持不变。
func (h *UserHandler) UpdateMyProfileHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req services.ProfileUpdate
	if !decodeJSONBody(w, r, &req) {
		return
	}
	user, err := h.userService.UpdateProfile(r.Context(), userID, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, user)
}

// UploadProfilePictureHandler 上传新头像（表单字段 "picture"）。
func (h *UserHandler) UploadProfilePictureHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	upload, ok := readImageUpload(w, r, "picture", h.policy.MaxProfilePictureBytes)
	if !ok {
		return
	}
	defer upload.Close()

	user, err := h.userService.UploadProfilePicture(r.Context(), userID, upload.file, upload.size, upload.fileName, upload.mimeType)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, user)
}

// GetProfilePictureHandler 重定向到用户头像的地址。
func (h *UserHandler) GetProfilePictureHandler(w http.ResponseWriter, r *http.Request) {
	user, err := h.userService.GetProfileByUsername(r.Context(), mux.Vars(r)["username"])
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if user.AvatarURL == "" {
		writeJSONResponse(w, http.StatusNotFound, ErrorResponse{Error: "no profile picture", Code: "NO_PROFILE_PICTURE"})
		return
	}
	http.Redirect(w, r, user.AvatarURL, http.StatusFound)
}

// GetUserProfileHandler 处理按用户名获取资料的请求。
func (h *UserHandler) GetUserProfileHandler(w http.ResponseWriter, r *http.Request) {
	user, err := h.userService.GetProfileByUsername(r.Context(), mux.Vars(r)["username"])
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	user.Email = ""
	writeJSONResponse(w, http.StatusOK, user)
}

// SearchUsersHandler 处理搜索用户的请求。
func (h *UserHandler) SearchUsersHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	query := r.URL.Query().Get("query")
	if len(query) < 2 {
		writeJSONError(w, "search query must be at least 2 characters", http.StatusBadRequest)
		return
	}

	users, err := h.userService.SearchUsers(r.Context(), query, userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, users)
}
