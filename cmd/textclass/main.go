// Command textclass trains a text classifier (recurrent, convolutional or
// transformer-encoder) on a labeled CSV corpus and renders a loss/accuracy
// chart.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"strconv"
	"strings"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/backend/webgpu"
	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/optim"
	"github.com/born-ml/born/tensor"

	"github.com/born-ml/textclass/internal/data"
	"github.com/born-ml/textclass/internal/models"
	"github.com/born-ml/textclass/internal/report"
	"github.com/born-ml/textclass/internal/train"
)

type options struct {
	variant  string
	dataPath string
	encoding string

	epochs     int
	batchSize  int
	maxLen     int
	trainFrac  float64
	seed       int64
	printEvery int

	lr        float64
	lrFactor  float64
	lrPate    int
	patience  int
	minDelta  float64
	classes   int
	dropout   float64
	embedDim  int
	hiddenDim int
	layers    int
	filters   string
	sizes     string
	heads     int
	blocks    int
	ffnDim    int

	gpu        bool
	plotPath   string
	checkpoint string
	pretrained string
}

func main() {
	var opts options
	flag.StringVar(&opts.variant, "variant", "rnn", "model variant: rnn, cnn or transformer")
	flag.StringVar(&opts.dataPath, "data", "", "labeled corpus CSV (label,text with header)")
	flag.StringVar(&opts.encoding, "encoding", "cl100k_base", "tiktoken encoding name")
	flag.IntVar(&opts.epochs, "epochs", 10, "training epochs")
	flag.IntVar(&opts.batchSize, "batch", 32, "batch size")
	flag.IntVar(&opts.maxLen, "maxlen", 128, "sequence length (truncate/pad)")
	flag.Float64Var(&opts.trainFrac, "train-frac", 0.8, "fraction of samples used for training")
	flag.Int64Var(&opts.seed, "seed", 42, "shuffle seed")
	flag.IntVar(&opts.printEvery, "print-every", 0, "progress line every N batches (0 = per epoch only)")
	flag.Float64Var(&opts.lr, "lr", 1e-3, "learning rate")
	flag.Float64Var(&opts.lrFactor, "lr-factor", 0.5, "plateau LR decay factor")
	flag.IntVar(&opts.lrPate, "lr-patience", 2, "epochs without improvement before LR decay")
	flag.IntVar(&opts.patience, "patience", 5, "early-stopping patience in epochs")
	flag.Float64Var(&opts.minDelta, "min-delta", 0, "minimum validation loss improvement")
	flag.IntVar(&opts.classes, "classes", 2, "number of classes")
	flag.Float64Var(&opts.dropout, "dropout", 0.3, "dropout probability")
	flag.IntVar(&opts.embedDim, "embed", 128, "embedding dimension")
	flag.IntVar(&opts.hiddenDim, "hidden", 256, "rnn hidden dimension")
	flag.IntVar(&opts.layers, "layers", 2, "rnn layers")
	flag.StringVar(&opts.filters, "filters", "100,100,100", "cnn filters per branch (comma separated)")
	flag.StringVar(&opts.sizes, "sizes", "3,4,5", "cnn filter heights (comma separated)")
	flag.IntVar(&opts.heads, "heads", 8, "transformer attention heads")
	flag.IntVar(&opts.blocks, "blocks", 4, "transformer encoder blocks")
	flag.IntVar(&opts.ffnDim, "ffn", 512, "transformer feed-forward dimension")
	flag.BoolVar(&opts.gpu, "gpu", false, "run on the WebGPU backend")
	flag.StringVar(&opts.plotPath, "plot", "training.png", "output chart path (empty = no chart)")
	flag.StringVar(&opts.checkpoint, "checkpoint", "", "write best weights to this .born file")
	flag.StringVar(&opts.pretrained, "pretrained", "", "transformer: load encoder weights from this .born file")
	flag.Parse()

	if opts.dataPath == "" {
		log.Fatal("missing -data: path to the labeled corpus CSV")
	}

	if opts.gpu {
		gpuBackend, err := webgpu.New()
		if err != nil {
			log.Fatalf("failed to initialize WebGPU backend: %v", err)
		}
		defer gpuBackend.Release()
		if err := run(gpuBackend, opts); err != nil {
			log.Fatal(err)
		}
		return
	}

	if err := run(cpu.New(), opts); err != nil {
		log.Fatal(err)
	}
}

func run[B tensor.Backend](base B, opts options) error {
	variant, err := models.ParseVariant(opts.variant)
	if err != nil {
		return err
	}

	backend := autodiff.New(base)

	tokenizer, err := data.NewTokenizer(opts.encoding)
	if err != nil {
		return err
	}

	samples, err := data.LoadCSV(opts.dataPath, tokenizer, opts.classes, 0)
	if err != nil {
		return err
	}
	data.ShuffleSamples(samples, rand.New(rand.NewSource(opts.seed)))

	trainSamples, validationSamples, err := data.Split(samples, opts.trainFrac)
	if err != nil {
		return err
	}

	trainLoader, err := data.NewLoader(trainSamples, opts.batchSize, opts.maxLen, backend)
	if err != nil {
		return err
	}
	validationLoader, err := data.NewLoader(validationSamples, opts.batchSize, opts.maxLen, backend)
	if err != nil {
		return err
	}

	model, err := buildModel(variant, tokenizer.VocabSize(), opts, backend)
	if err != nil {
		return err
	}

	fmt.Printf("%v\n", model)
	fmt.Printf("%d training batches, %d validation batches\n",
		trainLoader.NumBatches(), validationLoader.NumBatches())

	optimizer := optim.NewAdam(model.Parameters(), optim.AdamConfig{
		LR: float32(opts.lr),
	}, backend)

	stopper := train.NewEarlyStopping[*autodiff.Backend[B]](opts.patience, float32(opts.minDelta))
	if opts.checkpoint != "" {
		stopper.WithCheckpoint(opts.checkpoint)
	}

	history, err := train.Train(
		model,
		trainLoader,
		validationLoader,
		nn.NewCrossEntropyLoss(backend),
		optimizer,
		train.Config[B]{
			Epochs:      opts.epochs,
			PrintEvery:  opts.printEvery,
			Scheduler:   train.NewReduceLROnPlateau(optimizer, float32(opts.lrFactor), opts.lrPate, 0),
			Stopper:     stopper,
			RestoreBest: true,
		},
		backend,
	)
	if err != nil {
		return err
	}

	if opts.plotPath != "" {
		if err := report.NewPNGReporter(opts.plotPath).Render(history); err != nil {
			return err
		}
		fmt.Printf("Chart written to %s\n", opts.plotPath)
	}

	return nil
}

func buildModel[B tensor.Backend](
	variant models.Variant,
	vocabSize int,
	opts options,
	backend *autodiff.Backend[B],
) (models.Model[*autodiff.Backend[B]], error) {
	switch variant {
	case models.VariantRNN:
		return models.NewRNN(models.RNNConfig{
			VocabSize:  vocabSize,
			NumClasses: opts.classes,
			EmbedDim:   opts.embedDim,
			HiddenDim:  opts.hiddenDim,
			NumLayers:  opts.layers,
			DropProb:   float32(opts.dropout),
		}, backend), nil

	case models.VariantCNN:
		filters, err := parseInts(opts.filters)
		if err != nil {
			return nil, fmt.Errorf("invalid -filters: %w", err)
		}
		sizes, err := parseInts(opts.sizes)
		if err != nil {
			return nil, fmt.Errorf("invalid -sizes: %w", err)
		}
		return models.NewCNN(models.CNNConfig{
			VocabSize:   vocabSize,
			NumClasses:  opts.classes,
			EmbedDim:    opts.embedDim,
			NumFilters:  filters,
			FilterSizes: sizes,
			DropProb:    float32(opts.dropout),
		}, backend), nil

	case models.VariantTransformer:
		model := models.NewTransformerClassifier(models.TransformerConfig{
			VocabSize:  vocabSize,
			NumClasses: opts.classes,
			EmbedDim:   opts.embedDim,
			NumHeads:   opts.heads,
			NumBlocks:  opts.blocks,
			FFNDim:     opts.ffnDim,
			MaxLen:     opts.maxLen,
			DropProb:   float32(opts.dropout),
			NormEps:    1e-5,
		}, backend)
		if opts.pretrained != "" {
			if err := model.LoadPretrainedEncoder(opts.pretrained); err != nil {
				return nil, err
			}
		}
		return model, nil

	default:
		return nil, fmt.Errorf("%w: %v", models.ErrUnknownVariant, variant)
	}
}

func parseInts(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
