package server

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/RecoveryAshes/DiscoverCrawl/internal/core"
	"github.com/RecoveryAshes/DiscoverCrawl/internal/crawlers"
	"github.com/RecoveryAshes/DiscoverCrawl/internal/models"
	"github.com/RecoveryAshes/DiscoverCrawl/internal/utils"
	"github.com/gin-gonic/gin"
)

// SSE事件类型
const (
	EventDiscovery = "discovery"
	EventProgress  = "progress"
	EventResult    = "result"
	EventError     = "error"
)

const heartbeatInterval = 15 * time.Second

type streamEvent struct {
	name string
	data interface{}
}

// streamCrawl GET /api/crawl/stream?query=&max=
// 依次推送 discovery / progress 事件,最后是 result 或 error
func (s *Server) streamCrawl(c *gin.Context) {
	config := s.config.GetCrawlConfig()

	if query := strings.TrimSpace(c.Query("query")); query != "" {
		config.Query = query
	}
	if raw := c.Query("max"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > models.MaxProductsLimit {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("max 必须是 1-%d 之间的整数", models.MaxProductsLimit),
			})
			return
		}
		config.MaxProducts = n
	}
	if err := config.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// 同一时间只允许一个爬取任务
	select {
	case s.busy <- struct{}{}:
	default:
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "已有爬取任务在运行"})
		return
	}
	defer func() { <-s.busy }()

	ctx := c.Request.Context()
	events := make(chan streamEvent, 16)
	send := func(ev streamEvent) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}

	go func() {
		defer close(events)
		result, err := s.crawl(ctx, config,
			func(p core.Progress) { send(streamEvent{name: EventProgress, data: p}) },
			func(d crawlers.DiscoveryProgress) { send(streamEvent{name: EventDiscovery, data: d}) },
		)
		if err != nil {
			send(streamEvent{name: EventError, data: gin.H{"message": err.Error()}})
			return
		}
		send(streamEvent{name: EventResult, data: result})
	}()

	setSSEHeaders(c.Writer)
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.SSEvent(ev.name, ev.data)
			c.Writer.Flush()
		case <-heartbeat.C:
			fmt.Fprintf(c.Writer, ": heartbeat %s\n\n", time.Now().UTC().Format(time.RFC3339))
			c.Writer.Flush()
		case <-ctx.Done():
			// 客户端断开,等待爬取协程退出后再释放会话
			for range events {
			}
			return
		}
	}
}

// setSSEHeaders 设置SSE响应头
func setSSEHeaders(w gin.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// listResults GET /api/results
func (s *Server) listResults(c *gin.Context) {
	summaries, err := s.store.List()
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "读取结果列表失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": summaries, "count": len(summaries)})
}

// getResult GET /api/results/:id
func (s *Server) getResult(c *gin.Context) {
	result, ok := s.loadResult(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, result)
}

// downloadCSV GET /api/results/:id/csv
func (s *Server) downloadCSV(c *gin.Context) {
	result, ok := s.loadResult(c)
	if !ok {
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filepath.Base(result.Filename)))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", []byte(result.CSV))
}

func (s *Server) loadResult(c *gin.Context) (*models.RunResult, bool) {
	result, err := s.store.Load(c.Param("id"))
	if err != nil {
		if errors.Is(err, utils.ErrResultNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "结果不存在"})
			return nil, false
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "读取结果失败"})
		return nil, false
	}
	return result, true
}
