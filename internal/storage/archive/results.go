package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/newthinker/edgelab/internal/analysis"
	"github.com/newthinker/edgelab/internal/core"
)

// ResultsPrefix is the directory holding archived analysis results.
const ResultsPrefix = "results"

// ResultPath returns the archive path of a run.
func ResultPath(runID string) string {
	return path.Join(ResultsPrefix, runID+".json")
}

// SaveResult archives a finished analysis under results/<run_id>.json.
func SaveResult(ctx context.Context, st Storage, res *analysis.Result) (string, error) {
	if res == nil || res.RunID == "" {
		return "", core.Errorf(core.ErrStorage, "result without run id")
	}
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return "", core.WrapError(core.ErrStorage, fmt.Errorf("encoding result %s: %w", res.RunID, err))
	}
	p := ResultPath(res.RunID)
	if err := st.Write(ctx, p, data); err != nil {
		return "", err
	}
	return p, nil
}

// LoadResult reads an archived analysis.
func LoadResult(ctx context.Context, st Storage, runID string) (*analysis.Result, error) {
	data, err := st.Read(ctx, ResultPath(runID))
	if err != nil {
		return nil, err
	}
	var res analysis.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, core.WrapError(core.ErrStorage, fmt.Errorf("decoding result %s: %w", runID, err))
	}
	return &res, nil
}

// ListResults returns the archived run ids in lexical order.
func ListResults(ctx context.Context, st Storage) ([]string, error) {
	paths, err := st.List(ctx, ResultsPrefix)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(paths))
	for _, p := range paths {
		if !strings.HasSuffix(p, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(path.Base(p), ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}
