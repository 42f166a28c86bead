package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"donate-app/internal/store"
)

const (
	feedPageSize        = 50
	transactionPageSize = 100
)

// FeedHandler serves the read-only home feed and the public transaction
// history (unattributed general-fund transfers included).
type FeedHandler struct {
	Feed         *store.FeedStore
	Transactions *store.TransactionStore
}

func NewFeedHandler(feed *store.FeedStore, transactions *store.TransactionStore) *FeedHandler {
	return &FeedHandler{Feed: feed, Transactions: transactions}
}

func (h *FeedHandler) GetFeed(c *gin.Context) {
	items, err := h.Feed.ListRecent(c.Request.Context(), feedPageSize)
	if err != nil {
		log.Println("Failed to fetch feed:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not fetch feed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"feed": items})
}

func (h *FeedHandler) GetTransactions(c *gin.Context) {
	txs, err := h.Transactions.ListRecent(c.Request.Context(), transactionPageSize)
	if err != nil {
		log.Println("Failed to fetch transactions:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not fetch transactions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(txs),
		"data":    txs,
	})
}
