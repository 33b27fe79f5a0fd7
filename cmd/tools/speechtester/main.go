package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/zhouzirui/codementor/backend/internal/config"
	"github.com/zhouzirui/codementor/backend/internal/service/playback"
	"github.com/zhouzirui/codementor/backend/internal/service/speech"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	text := flag.String("text", "", "待合成并播放的文本")
	outputPath := flag.String("out", "", "输出 WAV 路径 (默认自动生成)")
	voice := flag.String("voice", "", "音色，默认使用 SPEECH_VOICE")
	provider := flag.String("provider", "", "合成提供方 gemini|openai|volcengine，默认使用 SPEECH_PROVIDER")
	startDelay := flag.Duration("start-delay", 0, "开始播放前的等待，默认使用 PLAYBACK_START_DELAY 或 2s")
	stopAfter := flag.Duration("stop-after", 0, "开始播放后多久请求停止，0 表示完整播放")
	timeout := flag.Duration("timeout", 2*time.Minute, "整体超时时间")

	flag.Parse()

	if strings.TrimSpace(*text) == "" {
		flag.Usage()
		log.Fatal("请通过 -text 提供待合成文本")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}
	if *provider != "" {
		cfg.Speech.Provider = strings.ToLower(*provider)
	}
	if *voice != "" {
		cfg.Speech.Voice = *voice
	}

	svc, err := speech.New(cfg.Speech, nil, 0)
	if err != nil {
		log.Fatalf("语音服务初始化失败: %v", err)
	}

	opts := playback.DefaultOptions()
	if cfg.Playback.StartDelay > 0 {
		opts.StartDelay = cfg.Playback.StartDelay
	}
	if cfg.Playback.StopDelay > 0 {
		opts.StopDelay = cfg.Playback.StopDelay
	}
	if *startDelay > 0 {
		opts.StartDelay = *startDelay
	}

	sink := playback.NewWAVSink(opts.Clock)
	scheduler := playback.NewScheduler(svc, sink, opts)
	defer scheduler.Close()

	log.Printf("开始合成并播放: provider=%s voice=%s", cfg.Speech.Provider, cfg.Speech.Voice)
	started := time.Now()
	played := scheduler.PlaySpeech(*text, nil)

	deadline := time.After(*timeout)
	var stopAt <-chan time.Time
	if *stopAfter > 0 {
		stopAt = time.After(opts.StartDelay + *stopAfter)
	}

	select {
	case <-played.Done():
	case <-stopAt:
		log.Printf("请求停止播放 (state=%s)", scheduler.State())
		stopped := scheduler.StopSpeech(nil)
		select {
		case <-stopped.Done():
		case <-deadline:
			log.Fatal("等待停止超时")
		}
	case <-deadline:
		log.Fatalf("播放超时 (state=%s)", scheduler.State())
	}

	if *outputPath == "" {
		*outputPath = fmt.Sprintf("speech-output-%d.wav", time.Now().Unix())
	}

	file, err := os.Create(*outputPath)
	if err != nil {
		log.Fatalf("创建输出文件失败: %v", err)
	}
	defer file.Close()

	if _, err := sink.WriteTo(file); err != nil {
		log.Fatalf("写入音频文件失败: %v", err)
	}

	log.Printf("完成: 输出文件 %s, 可听时长=%s, 片段=%d, 总耗时=%s",
		*outputPath, sink.Duration().Round(time.Millisecond), len(sink.Segments()), time.Since(started).Round(time.Millisecond))
}
