package data

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
)

// Sample is one labeled, tokenized document.
type Sample struct {
	Tokens []int32
	Label  int32
}

// LoadCSV reads a labeled text corpus from a CSV file and tokenizes it.
//
// CSV format (with header):
//
//	label,text
//	1,"great movie, would watch again"
//	0,"two hours I will never get back"
//
// Parameters:
//   - filename: path to the CSV file
//   - tokenizer: tokenizer used to encode each text
//   - numClasses: labels must fall in [0, numClasses)
//   - maxSamples: maximum number of samples to load (0 = load all)
func LoadCSV(filename string, tokenizer *Tokenizer, numClasses, maxSamples int) ([]Sample, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}

	if len(records) < 2 {
		return nil, fmt.Errorf("CSV file is empty or missing header")
	}

	// Skip header row
	records = records[1:]

	if maxSamples > 0 && len(records) > maxSamples {
		records = records[:maxSamples]
	}

	samples := make([]Sample, 0, len(records))
	for i, record := range records {
		if len(record) != 2 {
			return nil, fmt.Errorf("invalid record length at row %d: got %d, want 2", i+1, len(record))
		}

		label, err := strconv.Atoi(record[0])
		if err != nil {
			return nil, fmt.Errorf("invalid label at row %d: %w", i+1, err)
		}
		if label < 0 || label >= numClasses {
			return nil, fmt.Errorf("label out of range [0, %d) at row %d: %d", numClasses, i+1, label)
		}

		tokens := tokenizer.Encode(record[1])
		if len(tokens) == 0 {
			return nil, fmt.Errorf("empty text at row %d", i+1)
		}

		samples = append(samples, Sample{
			Tokens: tokens,
			Label:  int32(label),
		})
	}

	return samples, nil
}

// Split partitions samples into training and validation sets. trainFraction
// must be in (0, 1); the first len*trainFraction samples go to training.
// Shuffle beforehand if the corpus is ordered by label.
func Split(samples []Sample, trainFraction float64) (train, validation []Sample, err error) {
	if trainFraction <= 0 || trainFraction >= 1 {
		return nil, nil, fmt.Errorf("train fraction out of range (0, 1): %g", trainFraction)
	}

	cut := int(float64(len(samples)) * trainFraction)
	if cut == 0 || cut == len(samples) {
		return nil, nil, fmt.Errorf("split of %d samples at %g leaves an empty set", len(samples), trainFraction)
	}

	return samples[:cut], samples[cut:], nil
}
