// devoracle answers oracle requests for local runs. The verdict is the hex
// blake2b-256 digest of the evidence.
package main

import (
	"flag"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eigerco/attestd/internal/crypto"
	"github.com/eigerco/attestd/pkg/log"
)

type response struct {
	Message    string `json:"message"`
	StatusCode int    `json:"status_code"`
}

func newRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.POST("/entryNetwork", handleEntry)
	return r
}

func handleEntry(c *gin.Context) {
	evidence, err := io.ReadAll(c.Request.Body)
	if err != nil || len(evidence) == 0 {
		c.JSON(http.StatusBadRequest, response{Message: "empty evidence", StatusCode: http.StatusBadRequest})
		return
	}
	log.Root.Debug().Int("bytes", len(evidence)).Msg("verifying evidence")
	c.JSON(http.StatusOK, response{Message: crypto.HashData(evidence).String(), StatusCode: http.StatusOK})
}

func main() {
	addr := flag.String("addr", "127.0.0.1:17777", "listen address")
	flag.Parse()
	log.Init(log.Options{})

	log.Root.Info().Str("addr", *addr).Msg("dev oracle listening")
	if err := newRouter().Run(*addr); err != nil {
		log.Root.Fatal().Err(err).Msg("dev oracle stopped")
	}
}
