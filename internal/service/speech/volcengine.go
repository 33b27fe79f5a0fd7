package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/codementor/backend/internal/audio"
	"github.com/zhouzirui/codementor/backend/internal/config"
	"github.com/zhouzirui/codementor/backend/internal/model/speech"
)

// VolcengineGenerator 火山引擎单向流式 TTS 客户端
type VolcengineGenerator struct {
	cfg         config.VolcengineConfig
	voice       string
	appID       string
	token       string
	compression compression
	dialer      *websocket.Dialer
}

type volcengineRequest struct {
	User struct {
		UID string `json:"uid"`
	} `json:"user"`
	ReqParams struct {
		Speaker     string                `json:"speaker"`
		Text        string                `json:"text"`
		AudioParams volcengineAudioParams `json:"audio_params"`
		Additions   string                `json:"additions,omitempty"`
	} `json:"req_params"`
}

type volcengineAudioParams struct {
	Format     string `json:"format"`
	SampleRate int    `json:"sample_rate"`
}

type volcengineResponse struct {
	ReqID   string `json:"reqid"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data"`
}

// 服务端 20000000 与 3000 均表示成功
const (
	volcengineCodeOK       = 20000000
	volcengineCodeLegacyOK = 3000
)

// NewVolcengineGenerator 创建火山引擎 TTS 客户端
func NewVolcengineGenerator(cfg config.VolcengineConfig, voice string) (*VolcengineGenerator, error) {
	appID, token, err := resolveCredentials(cfg)
	if err != nil {
		return nil, err
	}

	return &VolcengineGenerator{
		cfg:         cfg,
		voice:       voice,
		appID:       appID,
		token:       token,
		compression: compressNone,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 30 * time.Second,
		},
	}, nil
}

// Generate 发送一次完整请求并收集全部音频分片
func (g *VolcengineGenerator) Generate(ctx context.Context, text, voice string) (*speech.Synthesis, error) {
	voice = voiceOr(voice, g.voice)
	connectID := uuid.New().String()

	header := http.Header{}
	header.Set("X-Api-App-Key", g.appID)
	header.Set("X-Api-Access-Key", g.token)
	header.Set("X-Api-Resource-Id", g.cfg.ResourceID)
	header.Set("X-Api-Connect-Id", connectID)

	conn, resp, err := g.dialer.DialContext(ctx, g.cfg.URL, header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to TTS WebSocket: %w", err)
	}
	defer conn.Close()

	if resp != nil {
		if logid := resp.Header.Get("X-Tt-Logid"); logid != "" {
			log.Printf("[speech] volcengine connected with logid: %s", logid)
		}
	}

	// 读循环阻塞在 ReadMessage 上，上下文取消时关闭连接使其返回
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	payload, err := g.buildRequest(connectID, text, voice)
	if err != nil {
		return nil, err
	}

	request := &frame{
		kind:          frameFullClient,
		flags:         flagNone,
		serialization: serialJSON,
		compression:   g.compression,
		payload:       payload,
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, request.encode()); err != nil {
		return nil, fmt.Errorf("failed to send TTS request: %w", err)
	}

	var (
		pcm   bytes.Buffer
		reqID = connectID
	)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("failed to read TTS response: %w", err)
		}

		f, err := decodeFrame(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode TTS frame: %w", err)
		}

		body, err := f.body()
		if err != nil {
			return nil, fmt.Errorf("failed to decompress TTS payload: %w", err)
		}

		switch f.kind {
		case frameError:
			return nil, fmt.Errorf("TTS error %d: %s", f.code, string(body))

		case frameAudioServer:
			pcm.Write(body)

		case frameFullServer:
			if f.hasEvent() && f.event == eventSessionFailed {
				return nil, fmt.Errorf("TTS session failed: %s", string(body))
			}

			if len(body) > 0 {
				var msg volcengineResponse
				if err := json.Unmarshal(body, &msg); err != nil {
					log.Printf("[speech] volcengine: unparseable response payload: %v", err)
				} else {
					if msg.Code != 0 && msg.Code != volcengineCodeOK && msg.Code != volcengineCodeLegacyOK {
						return nil, fmt.Errorf("TTS API error %d: %s", msg.Code, msg.Message)
					}
					if msg.ReqID != "" {
						reqID = msg.ReqID
					}
					if msg.Data != "" {
						chunk, err := base64.StdEncoding.DecodeString(msg.Data)
						if err != nil {
							return nil, fmt.Errorf("failed to decode base64 audio chunk: %w", err)
						}
						pcm.Write(chunk)
					}
				}
			}

			if (f.hasEvent() && f.event == eventSessionFinished) || f.last() {
				return g.result(pcm.Bytes(), reqID, voice), nil
			}

		default:
			log.Printf("[speech] volcengine: unexpected frame kind %d", f.kind)
		}
	}
}

func (g *VolcengineGenerator) buildRequest(uid, text, voice string) ([]byte, error) {
	req := &volcengineRequest{}
	req.User.UID = uid
	req.ReqParams.Speaker = voice
	req.ReqParams.Text = text
	req.ReqParams.AudioParams.Format = "pcm"
	req.ReqParams.AudioParams.SampleRate = audio.DefaultSampleRate
	req.ReqParams.Additions = `{"disable_markdown_filter":false}`

	raw, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal TTS request: %w", err)
	}
	return g.compression.encode(raw)
}

func (g *VolcengineGenerator) result(pcm []byte, reqID, voice string) *speech.Synthesis {
	result := &speech.Synthesis{
		SampleRate: audio.DefaultSampleRate,
		Channels:   audio.DefaultChannels,
		Voice:      voice,
		Provider:   config.ProviderVolcengine,
		RequestID:  reqID,
		CreatedAt:  time.Now(),
	}
	if len(pcm) > 0 {
		result.Audio = base64.StdEncoding.EncodeToString(pcm)
	}
	return result
}
