// Package attribution explains model outputs feature by feature.
//
// A Target is one of three scalar functions of a feature row: the mean log
// price, the epistemic std or the aleatoric std. Engine treats a target as a
// black box and estimates sampled Shapley values against a background set:
//
//	target, _ := attribution.NewTarget(domain.TargetEpistemicStd, m, attribution.TargetConfig{EpistemicPasses: 10})
//	records, err := attribution.NewEngine(4).Explain(ctx, target, background, queries, 200, rng)
//
// Every record satisfies Baseline + sum(Contributions) == Output up to
// floating point error. GlobalImportance, Dependence and Breakdown are views
// over a set of records.
package attribution
