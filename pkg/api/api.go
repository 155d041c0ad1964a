// Package api exposes a bridge's translation table over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"uantap/pkg/bridge"
	"uantap/pkg/log"
	"uantap/pkg/translator"
	"uantap/pkg/uanaddr"
)

type BridgeApi struct {
	Api    *echo.Echo
	Bridge *bridge.Bridge
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewBridgeApi(b *bridge.Bridge) *BridgeApi {
	api := echo.New()
	api.HideBanner = true
	api.HidePort = true
	bapi := &BridgeApi{
		Api:    api,
		Bridge: b,
	}
	bapi.Api.GET("/translations", bapi.GetTranslations)
	bapi.Api.GET("/translations/:long", bapi.GetTranslation)
	bapi.Api.DELETE("/translations/:long", bapi.DeleteTranslation)
	bapi.Api.GET("/reverse/:short", bapi.GetReverse)
	bapi.Api.GET("/neighbours", bapi.GetNeighbours)
	bapi.Api.GET("/stats", bapi.GetStats)
	return bapi
}

func (bapi *BridgeApi) GetTranslations(c echo.Context) error {
	return c.JSON(http.StatusOK, bapi.Bridge.Entries())
}

// GetTranslation translates the address in the path, allocating a short
// address on first sight.
func (bapi *BridgeApi) GetTranslation(c echo.Context) error {
	long, err := uanaddr.ParseLong(c.Param("long"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{err.Error()})
	}
	short, err := bapi.Bridge.Translate(long)
	if err != nil {
		return errorStatus(c, err)
	}
	return c.JSON(http.StatusOK, translator.Entry{Long: long, Short: short})
}

func (bapi *BridgeApi) DeleteTranslation(c echo.Context) error {
	long, err := uanaddr.ParseLong(c.Param("long"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{err.Error()})
	}
	if bapi.Bridge.Remove(long) {
		log.Info().Str("long", long.String()).Msg("api: translation removed")
	}
	return c.NoContent(http.StatusNoContent)
}

func (bapi *BridgeApi) GetReverse(c echo.Context) error {
	short, err := uanaddr.ParseShort(c.Param("short"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{err.Error()})
	}
	long, err := bapi.Bridge.Reverse(short)
	if err != nil {
		return errorStatus(c, err)
	}
	return c.JSON(http.StatusOK, translator.Entry{Long: long, Short: short})
}

func (bapi *BridgeApi) GetNeighbours(c echo.Context) error {
	return c.JSON(http.StatusOK, bapi.Bridge.Neighbours())
}

func (bapi *BridgeApi) GetStats(c echo.Context) error {
	return c.JSON(http.StatusOK, bapi.Bridge.Stats())
}

func errorStatus(c echo.Context, err error) error {
	switch {
	case errors.Is(err, translator.ErrUnknownAddress):
		return c.JSON(http.StatusNotFound, errorResponse{err.Error()})
	case errors.Is(err, uanaddr.ErrAllocatorExhausted):
		return c.JSON(http.StatusServiceUnavailable, errorResponse{err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, errorResponse{err.Error()})
	}
}

// Run serves on addr until ctx is cancelled.
func (bapi *BridgeApi) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("api: listening")
		errCh <- bapi.Api.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return bapi.Api.Shutdown(shutdownCtx)
	}
}
