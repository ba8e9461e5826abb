package ner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	defaultSeqLen   = 256
	defaultSessions = 1
)

// ModelConfig configures a local token-classification model.
type ModelConfig struct {
	BundleDir      string
	SeqLen         int
	Sessions       int
	IntraThreads   int
	InterThreads   int
	LabelAliases   map[string]string
	MinScore       float32
	VerifyManifest bool
}

// Model runs a BERT-style token-classification ONNX model. Text longer than
// one sequence is processed in consecutive word-aligned windows.
type Model struct {
	dir       string
	tokenizer *WordPieceTokenizer
	labels    []string
	numLabels int
	seqLen    int
	aliases   map[string]string
	minScore  float32
	sessions  chan *modelSession
	all       []*modelSession
}

type modelSession struct {
	session       *ort.AdvancedSession
	inputIDs      *ort.Tensor[int64]
	attentionMask *ort.Tensor[int64]
	tokenTypeIDs  *ort.Tensor[int64]
	output        *ort.Tensor[float32]
}

type modelMeta struct {
	Labels            []string
	RequiresTokenType bool
}

// LoadModel resolves the bundle directory, optionally verifies its manifest,
// initializes onnxruntime and allocates the session pool.
func LoadModel(cfg ModelConfig) (*Model, error) {
	dir, err := ResolveBundleDir(cfg.BundleDir)
	if err != nil {
		return nil, err
	}
	if cfg.VerifyManifest {
		if err := VerifyManifest(dir); err != nil {
			return nil, fmt.Errorf("verify bundle: %w", err)
		}
	}

	seqLen := cfg.SeqLen
	if seqLen <= 0 {
		seqLen = defaultSeqLen
	}
	poolSize := cfg.Sessions
	if poolSize <= 0 {
		poolSize = defaultSessions
	}
	intraThr := cfg.IntraThreads
	if intraThr <= 0 {
		intraThr = max(1, runtime.NumCPU()/poolSize)
	}
	interThr := cfg.InterThreads
	if interThr <= 0 {
		interThr = 1
	}

	modelPath := ModelFile(dir)
	if modelPath == "" {
		return nil, fmt.Errorf("no onnx model found in %s", dir)
	}
	tok, err := LoadTokenizerFromDir(dir)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}
	meta, err := loadModelMeta(dir)
	if err != nil {
		return nil, fmt.Errorf("load model meta: %w", err)
	}
	if len(meta.Labels) == 0 {
		return nil, errors.New("model labels missing (config.json id2label or label_map.json)")
	}

	libPath := resolveSharedLibraryPath(dir)
	if libPath == "" {
		return nil, fmt.Errorf("onnxruntime shared library not found; set ONNXRUNTIME_SHARED_LIBRARY_PATH or install the runtime")
	}
	ort.SetSharedLibraryPath(libPath)
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}

	outputName, outputDims, err := selectOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("inspect model outputs: %w", err)
	}

	m := &Model{
		dir:       dir,
		tokenizer: tok,
		labels:    meta.Labels,
		numLabels: len(meta.Labels),
		seqLen:    seqLen,
		aliases:   MergeAliases(cfg.LabelAliases),
		minScore:  cfg.MinScore,
		sessions:  make(chan *modelSession, poolSize),
	}
	for i := 0; i < poolSize; i++ {
		ss, err := newModelSession(modelPath, seqLen, m.numLabels, outputDims, intraThr, interThr, meta.RequiresTokenType, outputName)
		if err != nil {
			m.Close()
			return nil, err
		}
		m.all = append(m.all, ss)
		m.sessions <- ss
	}
	return m, nil
}

// Dir returns the resolved bundle directory.
func (m *Model) Dir() string { return m.dir }

// Extract implements Extractor.
func (m *Model) Extract(ctx context.Context, text string) ([]Entity, error) {
	if m == nil || m.tokenizer == nil || m.sessions == nil {
		return nil, errors.New("ner model not initialized")
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	var ss *modelSession
	select {
	case ss = <-m.sessions:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { m.sessions <- ss }()

	words := splitWordsWithOffsets(text)
	var raw []Entity
	for i := 0; i < len(words); {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ids, attn, offsets, consumed := m.tokenizer.encodeWords(words[i:], m.seqLen)
		if consumed == 0 {
			break
		}
		i += consumed
		if len(ids) == 0 {
			continue
		}
		labels, scores, err := m.runWindow(ss, ids, attn, len(offsets))
		if err != nil {
			return nil, err
		}
		raw = append(raw, entitiesFromTokenLabels(labels, scores, offsets)...)
	}

	merged := mergeEntities(raw)
	out := make([]Entity, 0, len(merged))
	for _, ent := range merged {
		if ent.Score < m.minScore {
			continue
		}
		ent.Label = NormalizeLabel(ent.Label, m.aliases)
		if ent.Start < 0 || ent.End > len(text) || ent.Start >= ent.End {
			continue
		}
		ent.Text = text[ent.Start:ent.End]
		out = append(out, ent)
	}
	return out, nil
}

func (m *Model) runWindow(ss *modelSession, ids, attn []int64, n int) ([]string, []float32, error) {
	copy(ss.inputIDs.GetData(), ids)
	copy(ss.attentionMask.GetData(), attn)
	if ss.tokenTypeIDs != nil {
		tokenTypes := ss.tokenTypeIDs.GetData()
		for i := range tokenTypes {
			tokenTypes[i] = 0
		}
	}
	if err := ss.session.Run(); err != nil {
		return nil, nil, fmt.Errorf("onnx run: %w", err)
	}

	logits := ss.output.GetData()
	labels := make([]string, n)
	scores := make([]float32, n)
	for i := 0; i < n; i++ {
		base := i * m.numLabels
		if base+m.numLabels > len(logits) {
			break
		}
		probs := softmax(logits[base : base+m.numLabels])
		best := 0
		for j := 1; j < len(probs); j++ {
			if probs[j] > probs[best] {
				best = j
			}
		}
		labels[i] = m.labels[best]
		scores[i] = probs[best]
	}
	return labels, scores, nil
}

// Close releases every ONNX session owned by the model.
func (m *Model) Close() error {
	if m == nil {
		return nil
	}
	var errs []error
	for _, ss := range m.all {
		if ss == nil {
			continue
		}
		if ss.session != nil {
			if err := ss.session.Destroy(); err != nil {
				errs = append(errs, err)
			}
		}
		for _, t := range []interface{ Destroy() error }{ss.inputIDs, ss.attentionMask, ss.output} {
			if err := t.Destroy(); err != nil {
				errs = append(errs, err)
			}
		}
		if ss.tokenTypeIDs != nil {
			if err := ss.tokenTypeIDs.Destroy(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	m.all = nil
	return errors.Join(errs...)
}

// ModelFile returns the ONNX file inside dir, preferring model.onnx.
func ModelFile(dir string) string {
	for _, name := range []string{"model.onnx", filepath.Join("onnx", "model.onnx"), "model_quantized.onnx"} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "*.onnx"))
	if len(matches) > 0 {
		sort.Strings(matches)
		return matches[0]
	}
	return ""
}

// entitiesFromTokenLabels merges BIO token labels into entity spans. The
// entity score is the mean token probability.
func entitiesFromTokenLabels(labels []string, scores []float32, offsets []tokenOffset) []Entity {
	if len(labels) == 0 || len(offsets) == 0 {
		return nil
	}
	var (
		entities []Entity
		cur      *Entity
		sum      float32
		count    int
	)
	flush := func() {
		if cur != nil {
			if count > 0 {
				cur.Score = sum / float32(count)
			}
			entities = append(entities, *cur)
			cur = nil
		}
		sum, count = 0, 0
	}

	for i, lbl := range labels {
		if i >= len(offsets) {
			break
		}
		offset := offsets[i]
		if offset.Start < 0 || offset.End <= offset.Start {
			continue
		}
		var score float32
		if i < len(scores) {
			score = scores[i]
		}
		prefix, typ := splitLabel(lbl)
		if typ == "" || strings.EqualFold(lbl, "O") {
			flush()
			continue
		}
		if prefix == "B" || cur == nil || !strings.EqualFold(cur.Label, typ) {
			flush()
			cur = &Entity{Label: typ, Start: offset.Start, End: offset.End}
			sum, count = score, 1
			continue
		}
		if offset.End > cur.End {
			cur.End = offset.End
		}
		sum += score
		count++
	}
	flush()
	return entities
}

func splitLabel(lbl string) (string, string) {
	lbl = strings.TrimSpace(lbl)
	if lbl == "" {
		return "", ""
	}
	parts := strings.SplitN(lbl, "-", 2)
	if len(parts) == 1 {
		return "", lbl
	}
	return strings.ToUpper(parts[0]), parts[1]
}

// mergeEntities joins overlapping or touching spans of the same label. Window
// boundaries can split one name into two adjacent entities.
func mergeEntities(in []Entity) []Entity {
	if len(in) == 0 {
		return nil
	}
	sort.SliceStable(in, func(i, j int) bool {
		if in[i].Start == in[j].Start {
			return in[i].End < in[j].End
		}
		return in[i].Start < in[j].Start
	})
	out := make([]Entity, 0, len(in))
	cur := in[0]
	for _, ent := range in[1:] {
		if ent.Start <= cur.End && strings.EqualFold(ent.Label, cur.Label) {
			if ent.End > cur.End {
				cur.End = ent.End
			}
			if ent.Score < cur.Score {
				cur.Score = ent.Score
			}
			continue
		}
		out = append(out, cur)
		cur = ent
	}
	return append(out, cur)
}

func loadModelMeta(dir string) (modelMeta, error) {
	meta := modelMeta{}
	if data, err := os.ReadFile(filepath.Join(dir, "config.json")); err == nil {
		var cfg struct {
			ID2Label      map[string]string `json:"id2label"`
			Label2ID      map[string]int    `json:"label2id"`
			TypeVocabSize int               `json:"type_vocab_size"`
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return meta, err
		}
		meta.Labels = labelsFromIDMap(cfg.ID2Label)
		if len(meta.Labels) == 0 && len(cfg.Label2ID) > 0 {
			meta.Labels = labelsFromLabel2ID(cfg.Label2ID)
		}
		meta.RequiresTokenType = cfg.TypeVocabSize > 0
	}

	if data, err := os.ReadFile(filepath.Join(dir, "label_map.json")); err == nil {
		var list []string
		if err := json.Unmarshal(data, &list); err == nil && len(list) > 0 {
			meta.Labels = list
		} else {
			var idMap map[string]string
			if err := json.Unmarshal(data, &idMap); err == nil && len(idMap) > 0 {
				meta.Labels = labelsFromIDMap(idMap)
			}
		}
	}
	return meta, nil
}

func labelsFromIDMap(id2label map[string]string) []string {
	if len(id2label) == 0 {
		return nil
	}
	maxID := -1
	byID := make(map[int]string, len(id2label))
	for k, v := range id2label {
		id, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil || id < 0 {
			continue
		}
		byID[id] = v
		if id > maxID {
			maxID = id
		}
	}
	if maxID < 0 {
		return nil
	}
	out := make([]string, maxID+1)
	for id, v := range byID {
		out[id] = v
	}
	return out
}

func labelsFromLabel2ID(label2id map[string]int) []string {
	maxID := -1
	for _, id := range label2id {
		if id > maxID {
			maxID = id
		}
	}
	if maxID < 0 {
		return nil
	}
	out := make([]string, maxID+1)
	for lbl, id := range label2id {
		if id >= 0 {
			out[id] = lbl
		}
	}
	return out
}

func newModelSession(modelPath string, seqLen, numLabels int, outputDims []int64, intraThr, interThr int, includeTokenType bool, outputName string) (*modelSession, error) {
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("create session options: %w", err)
	}
	defer opts.Destroy()
	if err := opts.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableAll); err != nil {
		return nil, fmt.Errorf("set graph optimization: %w", err)
	}
	if err := opts.SetIntraOpNumThreads(intraThr); err != nil {
		return nil, fmt.Errorf("set intra threads: %w", err)
	}
	if err := opts.SetInterOpNumThreads(interThr); err != nil {
		return nil, fmt.Errorf("set inter threads: %w", err)
	}

	inputShape := ort.NewShape(1, int64(seqLen))
	inputIDs, err := ort.NewEmptyTensor[int64](inputShape)
	if err != nil {
		return nil, fmt.Errorf("allocate input_ids tensor: %w", err)
	}
	attnMask, err := ort.NewEmptyTensor[int64](inputShape)
	if err != nil {
		return nil, fmt.Errorf("allocate attention_mask tensor: %w", err)
	}
	var tokenType *ort.Tensor[int64]
	if includeTokenType {
		tokenType, err = ort.NewEmptyTensor[int64](inputShape)
		if err != nil {
			return nil, fmt.Errorf("allocate token_type_ids tensor: %w", err)
		}
	}
	output, err := ort.NewEmptyTensor[float32](buildOutputShape(outputDims, seqLen, numLabels))
	if err != nil {
		return nil, fmt.Errorf("allocate output tensor: %w", err)
	}

	inputNames := []string{"input_ids", "attention_mask"}
	inputValues := []ort.Value{inputIDs, attnMask}
	if tokenType != nil {
		inputNames = append(inputNames, "token_type_ids")
		inputValues = append(inputValues, tokenType)
	}
	session, err := ort.NewAdvancedSession(modelPath, inputNames, []string{outputName}, inputValues, []ort.Value{output}, opts)
	if err != nil {
		return nil, fmt.Errorf("create onnx session: %w", err)
	}
	return &modelSession{
		session:       session,
		inputIDs:      inputIDs,
		attentionMask: attnMask,
		tokenTypeIDs:  tokenType,
		output:        output,
	}, nil
}

func selectOutputInfo(modelPath string) (string, []int64, error) {
	_, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return "", nil, err
	}
	if len(outputs) == 0 {
		return "", nil, errors.New("no outputs found")
	}
	for _, out := range outputs {
		if strings.EqualFold(out.Name, "logits") {
			return out.Name, out.Dimensions, nil
		}
	}
	if len(outputs) == 1 {
		return outputs[0].Name, outputs[0].Dimensions, nil
	}
	names := make([]string, 0, len(outputs))
	for _, out := range outputs {
		names = append(names, out.Name)
	}
	return "", nil, fmt.Errorf("multiple outputs found without logits: %v", names)
}

// buildOutputShape fills dynamic dimensions of a [batch, seq, labels] output.
func buildOutputShape(dims []int64, seqLen, numLabels int) ort.Shape {
	if len(dims) != 3 {
		return ort.NewShape(1, int64(seqLen), int64(numLabels))
	}
	shape := make([]int64, 3)
	copy(shape, dims)
	if shape[0] <= 0 {
		shape[0] = 1
	}
	if shape[1] <= 0 {
		shape[1] = int64(seqLen)
	}
	if shape[2] <= 0 {
		shape[2] = int64(numLabels)
	}
	return ort.Shape(shape)
}

func softmax(logits []float32) []float32 {
	if len(logits) == 0 {
		return nil
	}
	maxV := logits[0]
	for _, v := range logits[1:] {
		if v > maxV {
			maxV = v
		}
	}
	out := make([]float32, len(logits))
	var sum float64
	for i, v := range logits {
		e := math.Exp(float64(v - maxV))
		out[i] = float32(e)
		sum += e
	}
	if sum == 0 {
		return out
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / sum)
	}
	return out
}

// resolveSharedLibraryPath locates the onnxruntime shared library.
// ONNXRUNTIME_SHARED_LIBRARY_PATH wins over probing.
func resolveSharedLibraryPath(bundleDir string) string {
	if env := strings.TrimSpace(os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH")); env != "" {
		return env
	}
	names := []string{
		"libonnxruntime.so",
		"libonnxruntime.dylib",
		"onnxruntime.so",
		"onnxruntime.dylib",
		"onnxruntime.dll",
	}
	dirs := []string{
		bundleDir,
		filepath.Join(bundleDir, "lib"),
		".",
		"/opt/homebrew/lib",
		"/usr/local/lib",
		"/usr/lib",
	}
	for _, dir := range dirs {
		for _, name := range names {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
	}
	return ""
}
