// Command ctceval decodes an HTK corpus with a trained
// model and reports the label error rate.
package main

import (
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/unixpickle/anyspeech/anyasr"
	"github.com/unixpickle/anyspeech/internal/config"
	"github.com/unixpickle/essentials"
)

func main() {
	configFile := flag.String("config", "", "path to config file (optional)")
	flag.String("scp", "", "SCP file listing feature files")
	flag.String("mlf", "", "MLF file with transcriptions")
	flag.String("symbols", "", "state list (blank last)")
	flag.String("feature_root", "", "directory for relative feature paths")
	flag.String("mean", "", "global mean file")
	flag.String("inv_std", "", "global inverse standard deviation file")
	flag.String("model_path", "", "trained model path")
	flag.Int("batch_size", 0, "utterances per evaluation batch")
	verbose := flag.Bool("verbose", false, "print every hypothesis")
	flag.Parse()

	overrides := map[string]interface{}{}
	flag.Visit(func(f *flag.Flag) {
		if f.Name != "config" && f.Name != "verbose" {
			overrides[f.Name] = f.Value.(flag.Getter).Get()
		}
	})
	cfg, err := config.Load(*configFile, overrides)
	if err != nil {
		essentials.Die(err)
	}
	if err := cfg.ValidateData(); err != nil {
		essentials.Die(err)
	}

	log.Println("Loading model from", cfg.ModelPath)
	model, err := anyasr.LoadModel(cfg.ModelPath)
	if err != nil {
		essentials.Die(err)
	}
	corpus, err := anyasr.LoadCorpus(cfg, nil)
	if err != nil {
		essentials.Die(err)
	}
	if model.OutputDim() != corpus.Symbols.Len() {
		essentials.Die(fmt.Sprintf("model has %d outputs but there are %d symbols",
			model.OutputDim(), corpus.Symbols.Len()))
	}
	corpus.C = model.Creator()

	log.Printf("Evaluating %d utterances...", corpus.Len())
	res, err := anyasr.Evaluate(model, corpus, cfg.BatchSize, cfg.IgnoreTokens)
	if err != nil {
		essentials.Die(err)
	}
	if *verbose {
		for i, hyp := range res.Hyps {
			fmt.Printf("%s: %s\n", corpus.Utterances[i].ID,
				strings.Join(corpus.Symbols.Decode(hyp), " "))
		}
	}
	fmt.Printf("cost=%f ler=%f infeasible=%d\n", res.Cost, res.ErrorRate, res.Infeasible)
}
