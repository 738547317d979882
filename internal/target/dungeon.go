package target

// MinimumHP returns the smallest starting health that lets a player walk
// from the top-left to the bottom-right cell, moving only right or down,
// without health ever dropping below 1. Empty boards need 1.
func MinimumHP(board [][]int) int {
	rows := len(board)
	if rows == 0 || len(board[0]) == 0 {
		return 1
	}
	cols := len(board[0])

	// need[j] is the health required on entering cell (i, j) of the row
	// being computed; need[cols] pads the right edge.
	need := make([]int, cols+1)
	for j := range need {
		need[j] = int(^uint(0) >> 1)
	}
	for i := rows - 1; i >= 0; i-- {
		row := board[i]
		for j := cols - 1; j >= 0; j-- {
			next := min(need[j], need[j+1])
			if i == rows-1 && j == cols-1 {
				next = 1
			}
			cell := 0
			if j < len(row) {
				cell = row[j]
			}
			need[j] = max(1, next-cell)
		}
	}
	return need[0]
}
