package model

// Problem は問題情報を表す。
// ProblemName、SolvedacTier、Tags はスクレイプで更新されるフィールド。
type Problem struct {
	ProblemID    int
	ProblemName  string
	SolvedacTier int
	Tags         []string
}

// ProblemInfo はsolved.acから取得した問題メタデータ。
type ProblemInfo struct {
	Title string
	Tier  int
	Tags  []string
}

// SolvedStatus はBOJユーザーページから取得した解答状況。
// Solved は正解した問題、Wrong は試行したが正解していない問題。
type SolvedStatus struct {
	Solved []int
	Wrong  []int
}
