package transcode

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// FFmpeg 基于外部 ffmpeg 进程的转码实现
type FFmpeg struct {
	binary  string
	tempDir string
	timeout time.Duration
}

// NewFFmpeg 创建 ffmpeg 转码器
func NewFFmpeg(binary, tempDir string, timeout time.Duration) *FFmpeg {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpeg{
		binary:  binary,
		tempDir: tempDir,
		timeout: timeout,
	}
}

// Transcode 将输入文件转码为 H.264/AAC 的 mp4
// faststart 将 moov 前置，使对象在流式下载时可以立即播放。转码受
// 超时约束，卡死的进程与显式失败同样中止该文件的上传。
func (f *FFmpeg) Transcode(ctx context.Context, inputPath string) (string, error) {
	out, err := os.CreateTemp(f.tempDir, "transcode-*"+TargetExtension)
	if err != nil {
		return "", fmt.Errorf("failed to create transcode output file: %w", err)
	}
	outputPath := out.Name()
	if err := out.Close(); err != nil {
		_ = os.Remove(outputPath)
		return "", fmt.Errorf("failed to close transcode output file: %w", err)
	}

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, f.binary,
		"-y",
		"-i", inputPath,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-c:a", "aac",
		"-movflags", "+faststart",
		outputPath,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		_ = os.Remove(outputPath)
		if ctx.Err() != nil {
			return "", fmt.Errorf("ffmpeg did not finish in time: %w", ctx.Err())
		}
		return "", fmt.Errorf("ffmpeg failed: %w: %s", err, lastStderrLine(&stderr))
	}

	return outputPath, nil
}

// lastStderrLine 取 ffmpeg 输出的最后一行作为错误摘要
func lastStderrLine(buf *bytes.Buffer) string {
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}
