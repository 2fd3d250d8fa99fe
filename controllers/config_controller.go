package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/linkup-social/linkup/config"
	"github.com/linkup-social/linkup/utils"
)

// ConfigController serves static, configuration-driven content for the UI sidebar.
type ConfigController struct {
	news []config.NewsItem
}

func NewConfigController(news []config.NewsItem) *ConfigController {
	if news == nil {
		news = []config.NewsItem{}
	}
	return &ConfigController{news: news}
}

// GetNews returns the configured headline list.
func (c *ConfigController) GetNews(ctx *gin.Context) {
	utils.Success(ctx, gin.H{"news": c.news})
}
