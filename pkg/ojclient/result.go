package ojclient

import "fmt"

// Result is the judge's numeric verdict code, a small closed enumeration
// with two aliased integers on ingress. Values and aliases are copied
// verbatim from original_source/crawler/clients/oj_client.py: Result.
type Result int

const (
	ResultNone    Result = -10
	ResultCE      Result = -2
	ResultWA      Result = -1
	ResultAC      Result = 0
	ResultTLE     Result = 1
	ResultMLE     Result = 3
	ResultRE      Result = 4
	ResultSE      Result = 5
	ResultPending Result = 6
	ResultJudging Result = 7
	ResultPAC     Result = 8
)

// resultFromAPIAlias maps non-standard wire values to their canonical
// Result, mirroring Result.from_api_value's alias_map.
var resultFromAPIAlias = map[int]Result{
	-3: ResultMLE,
	2:  ResultTLE,
}

// knownResults is the set of canonical (non-aliased) wire values.
var knownResults = map[int]Result{
	int(ResultNone):    ResultNone,
	int(ResultCE):      ResultCE,
	int(ResultWA):      ResultWA,
	int(ResultAC):      ResultAC,
	int(ResultTLE):     ResultTLE,
	int(ResultMLE):     ResultMLE,
	int(ResultRE):      ResultRE,
	int(ResultSE):      ResultSE,
	int(ResultPending): ResultPending,
	int(ResultJudging): ResultJudging,
	int(ResultPAC):     ResultPAC,
}

// ResultFromAPIValue normalizes a raw wire value into its canonical
// Result, resolving aliases first.
func ResultFromAPIValue(apiValue int) (Result, error) {
	if r, ok := resultFromAPIAlias[apiValue]; ok {
		return r, nil
	}
	if r, ok := knownResults[apiValue]; ok {
		return r, nil
	}
	return 0, fmt.Errorf("%d is not a valid or aliased judge result code", apiValue)
}

// IsJudged reports whether r is a terminal verdict (i.e. not still
// pending/judging).
func IsJudged(r Result) bool {
	return r != ResultPending && r != ResultJudging
}
