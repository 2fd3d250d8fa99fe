package controllers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/linkup-social/linkup/middleware"
	"github.com/linkup-social/linkup/services"
	"github.com/linkup-social/linkup/storage"
	"github.com/linkup-social/linkup/utils"
)

// respondError maps service errors onto the response envelope. Unclassified
// errors are logged and answered with a generic 500 unless dev is set.
func respondError(ctx *gin.Context, err error, dev bool) {
	var (
		validation    *services.ValidationError
		conflict      *services.ConflictError
		authErr       *services.AuthError
		authorization *services.AuthorizationError
		notFound      *services.NotFoundError
	)
	switch {
	case errors.As(err, &validation):
		utils.Error(ctx, http.StatusBadRequest, 40001, validation.Message)
	case errors.As(err, &conflict):
		utils.Error(ctx, http.StatusBadRequest, 40002, conflict.Message)
	case errors.Is(err, storage.ErrFileTooLarge):
		utils.Error(ctx, http.StatusBadRequest, 40003, "image must be 5MB or smaller")
	case errors.Is(err, storage.ErrUnsupportedType):
		utils.Error(ctx, http.StatusBadRequest, 40004, storage.ErrUnsupportedType.Error())
	case errors.As(err, &authErr):
		utils.Error(ctx, http.StatusUnauthorized, 40101, authErr.Message)
	case errors.As(err, &authorization):
		utils.Error(ctx, http.StatusForbidden, 40301, authorization.Message)
	case errors.As(err, &notFound):
		utils.Error(ctx, http.StatusNotFound, 40401, capitalize(notFound.Error()))
	default:
		utils.Logger.Error("request failed",
			zap.Error(err),
			zap.String("method", ctx.Request.Method),
			zap.String("path", ctx.FullPath()),
			zap.String("request_id", ctx.GetString(utils.RequestIDHeader)),
		)
		message := "Server error"
		if dev {
			message = err.Error()
		}
		utils.Error(ctx, http.StatusInternalServerError, 50000, message)
	}
}

func capitalize(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}

// idParam parses a positive numeric path parameter.
func idParam(ctx *gin.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(ctx.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, &services.ValidationError{Message: "invalid " + name}
	}
	return uint(id), nil
}

func getUserID(ctx *gin.Context) (uint, bool) {
	id, ok := middleware.UserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
	}
	return id, ok
}

// discardUpload removes an image stored for a request that failed afterwards.
func discardUpload(ctx *gin.Context, uploads ImageUploader, url string) {
	if url == "" {
		return
	}
	if err := uploads.Remove(context.WithoutCancel(ctx.Request.Context()), url); err != nil {
		utils.Sugar.Warnf("remove orphaned upload %s: %v", url, err)
	}
}

// isMultipart reports whether the request carries a multipart form.
func isMultipart(ctx *gin.Context) bool {
	return ctx.ContentType() == "multipart/form-data"
}
