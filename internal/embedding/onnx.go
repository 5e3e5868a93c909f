//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	ortInitOnce sync.Once
	ortInitErr  error
)

func initRuntime(libraryPath string) error {
	ortInitOnce.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}

// ONNXEmbedder runs a sentence-transformer exported to ONNX. Inputs are fixed
// [batch, maxTokens] tensors; the last_hidden_state output is mean pooled over
// the attention mask and L2 normalized. It requires CGO and the onnxruntime library.
type ONNXEmbedder struct {
	session    *ort.AdvancedSession
	tokenizer  Tokenizer
	modelName  string
	dimensions int
	maxTokens  int
	batchSize  int

	inputIDsTensor      *ort.Tensor[int64]
	attentionMaskTensor *ort.Tensor[int64]
	tokenTypeIDsTensor  *ort.Tensor[int64]
	outputTensor        *ort.Tensor[float32]
	mu                  sync.Mutex
}

// NewONNXEmbedder loads the model in cfg.ModelDir. The embedding dimension is
// the hidden_size in the directory's config.json.
func NewONNXEmbedder(cfg ONNXConfig) (*ONNXEmbedder, error) {
	cfg = cfg.withDefaults()
	if err := CheckModelDir(cfg.ModelDir); err != nil {
		return nil, err
	}
	modelCfg, err := LoadModelConfig(cfg.ModelDir)
	if err != nil {
		return nil, err
	}
	lower := true
	if modelCfg.LowerCase != nil {
		lower = *modelCfg.LowerCase
	}
	tokenizer, err := LoadWordPiece(filepath.Join(cfg.ModelDir, VocabFile), lower)
	if err != nil {
		return nil, err
	}
	if err := initRuntime(cfg.LibraryPath); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
	}

	e := &ONNXEmbedder{
		tokenizer:  tokenizer,
		modelName:  cfg.ModelName,
		dimensions: modelCfg.HiddenSize,
		maxTokens:  cfg.MaxTokens,
		batchSize:  cfg.BatchSize,
	}
	inShape := ort.NewShape(int64(cfg.BatchSize), int64(cfg.MaxTokens))
	if e.inputIDsTensor, err = ort.NewEmptyTensor[int64](inShape); err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	if e.attentionMaskTensor, err = ort.NewEmptyTensor[int64](inShape); err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	if e.tokenTypeIDsTensor, err = ort.NewEmptyTensor[int64](inShape); err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to create token_type_ids tensor: %w", err)
	}
	outShape := ort.NewShape(int64(cfg.BatchSize), int64(cfg.MaxTokens), int64(e.dimensions))
	if e.outputTensor, err = ort.NewEmptyTensor[float32](outShape); err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	e.session, err = ort.NewAdvancedSession(
		filepath.Join(cfg.ModelDir, ModelFile),
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		[]ort.ArbitraryTensor{e.inputIDsTensor, e.attentionMaskTensor, e.tokenTypeIDsTensor},
		[]ort.ArbitraryTensor{e.outputTensor},
		nil,
	)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}
	return e, nil
}

// EmbedBatch embeds texts in fixed-size runs. A partial final run is padded
// with empty rows whose outputs are discarded.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := e.run(texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("inference on texts %d-%d: %w", start, end-1, err)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (e *ONNXEmbedder) run(texts []string) ([][]float32, error) {
	ids := e.inputIDsTensor.GetData()
	mask := e.attentionMaskTensor.GetData()
	types := e.tokenTypeIDsTensor.GetData()
	for i := range ids {
		ids[i], mask[i], types[i] = 0, 0, 0
	}
	for row, text := range texts {
		rowIDs, rowMask, rowTypes := e.tokenizer.Tokenize(text, e.maxTokens)
		off := row * e.maxTokens
		copy(ids[off:off+e.maxTokens], rowIDs)
		copy(mask[off:off+e.maxTokens], rowMask)
		copy(types[off:off+e.maxTokens], rowTypes)
	}

	if err := e.session.Run(); err != nil {
		return nil, err
	}

	pooled := MeanPool(e.outputTensor.GetData(), mask, e.batchSize, e.maxTokens, e.dimensions)
	pooled = pooled[:len(texts)]
	for _, v := range pooled {
		NormalizeL2(v)
	}
	return pooled, nil
}

// Dimensions returns the embedding dimension.
func (e *ONNXEmbedder) Dimensions() int {
	return e.dimensions
}

// ModelName returns the configured model name.
func (e *ONNXEmbedder) ModelName() string {
	return e.modelName
}

// Close destroys the session and tensors.
func (e *ONNXEmbedder) Close() error {
	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	if e.inputIDsTensor != nil {
		_ = e.inputIDsTensor.Destroy()
		e.inputIDsTensor = nil
	}
	if e.attentionMaskTensor != nil {
		_ = e.attentionMaskTensor.Destroy()
		e.attentionMaskTensor = nil
	}
	if e.tokenTypeIDsTensor != nil {
		_ = e.tokenTypeIDsTensor.Destroy()
		e.tokenTypeIDsTensor = nil
	}
	if e.outputTensor != nil {
		_ = e.outputTensor.Destroy()
		e.outputTensor = nil
	}
	return err
}
