package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/gorilla/websocket"

	"github.com/bryanchriswhite/waycap/internal/backend"
	"github.com/bryanchriswhite/waycap/internal/encode"
	"github.com/bryanchriswhite/waycap/internal/geometry"
	"github.com/bryanchriswhite/waycap/internal/logger"
	"github.com/bryanchriswhite/waycap/internal/window"
)

// Websocket message types.
const (
	msgListOutputs   = "list_outputs"
	msgCapture       = "capture"
	msgCaptureWindow = "capture_window"
	msgSave          = "save"
)

// wsRequest is a command sent by a websocket client. For save, the
// capture fields select what is captured before it is written to the
// configured screenshot directory.
type wsRequest struct {
	ID       string `json:"id,omitempty"`
	Type     string `json:"type"`
	Output   string `json:"output,omitempty"`
	Region   string `json:"region,omitempty"`
	Cursor   *bool  `json:"cursor,omitempty"`
	Window   bool   `json:"window,omitempty"`
	Format   string `json:"format,omitempty"`
	Quality  int    `json:"quality,omitempty"`
	Label    string `json:"label,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// wsResponse answers one wsRequest.
type wsResponse struct {
	ID          string            `json:"id,omitempty"`
	Type        string            `json:"type"`
	Outputs     []geometry.Output `json:"outputs,omitempty"`
	Window      *window.Window    `json:"window,omitempty"`
	Output      string            `json:"output,omitempty"`
	ContentType string            `json:"content_type,omitempty"`
	Data        string            `json:"data,omitempty"`
	Path        string            `json:"path,omitempty"`
	Error       string            `json:"error,omitempty"`
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithComponent("api").Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	log := logger.WithComponent("api").With().Str("remote", r.RemoteAddr).Logger()
	log.Debug().Msg("WebSocket client connected")

	for {
		var req wsRequest
		if err := conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Msg("WebSocket read ended")
			}
			return
		}

		resp := s.handleMessage(r.Context(), req)
		if err := conn.WriteJSON(resp); err != nil {
			log.Warn().Err(err).Msg("WebSocket write error")
			return
		}
	}
}

func (s *Server) handleMessage(ctx context.Context, req wsRequest) wsResponse {
	resp := wsResponse{ID: req.ID, Type: req.Type}
	if err := s.dispatch(ctx, req, &resp); err != nil {
		resp.Error = err.Error()
	}
	return resp
}

func (s *Server) dispatch(ctx context.Context, req wsRequest, resp *wsResponse) error {
	if req.Type == msgListOutputs {
		res, err := s.do(ctx, backend.ListOutputs{})
		resp.Outputs = res.Outputs
		return err
	}

	cursor := ""
	if req.Cursor != nil {
		cursor = fmt.Sprint(*req.Cursor)
	}
	quality := ""
	if req.Quality != 0 {
		quality = fmt.Sprint(req.Quality)
	}
	q, err := s.newQuery(req.Output, req.Region, cursor, req.Format, quality, req.Label)
	if err != nil {
		return err
	}

	switch req.Type {
	case msgCapture, msgCaptureWindow:
		q.window = req.Type == msgCaptureWindow
	case msgSave:
		q.window = req.Window
		if err := checkFilename(req.Filename); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unknown message type %q", errBadRequest, req.Type)
	}

	res, err := s.do(ctx, q.command())
	if err != nil {
		return err
	}
	resp.Window = res.Window
	resp.Output = res.Frame.Output.Name

	if req.Type == msgSave {
		saved, err := s.do(ctx, backend.Save{
			Frame:    res.Frame,
			Dir:      s.defaults.Dir,
			Filename: req.Filename,
			Format:   q.format,
			Options:  encode.Options{Quality: q.quality},
			Label:    q.newLabel(res.Frame.Output.Name, res.Frame.Timestamp),
		})
		if err != nil {
			// Save may never have reached the worker. Close is idempotent.
			res.Frame.Close()
			return err
		}
		resp.Path = saved.Path
		return nil
	}

	img := res.Frame.Clone()
	res.Frame.Close()
	if l := q.newLabel(resp.Output, res.Frame.Timestamp); l != nil {
		if err := l.Render(img); err != nil {
			return err
		}
	}

	var buf bytes.Buffer
	if err := encode.Encode(&buf, img, q.format, encode.Options{Quality: q.quality}); err != nil {
		return err
	}
	resp.ContentType = q.format.ContentType()
	resp.Data = base64.StdEncoding.EncodeToString(buf.Bytes())
	return nil
}

// checkFilename allows only a bare file name inside the screenshot
// directory. Empty selects the default name.
func checkFilename(name string) error {
	if name == "" {
		return nil
	}
	if name == encode.Stdout || name == "." || name == ".." || filepath.Base(name) != name {
		return fmt.Errorf("%w: filename %q must be a plain file name", errBadRequest, name)
	}
	return nil
}
