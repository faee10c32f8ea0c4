package game

// 共享存储中的文档路径布局。顶层集合按 "实体-子实体" 命名，
// 子文档挂在所属实体ID之下。

func gamePath(gameID string) string { return "games/" + gameID }

func playersPath(gameID string) string { return "games-players/" + gameID }

func playerPath(gameID, playerID string) string { return playersPath(gameID) + "/" + playerID }

func roundsPath(gameID string) string { return "games-rounds/" + gameID }

func roundPath(gameID, roundID string) string { return roundsPath(gameID) + "/" + roundID }

func tracksPath(roundID string) string { return "rounds-tracks/" + roundID }

func trackPath(roundID, trackID string) string { return tracksPath(roundID) + "/" + trackID }

func guessesPath(trackID string) string { return "tracks-players/" + trackID }

func guessPath(trackID, playerID string) string { return guessesPath(trackID) + "/" + playerID }

// usedTracksPath 游戏内已出过的曲目ID集合，用于选曲降权
func usedTracksPath(gameID string) string { return "games-used/" + gameID }

func usedTrackPath(gameID, catalogTrackID string) string {
	return usedTracksPath(gameID) + "/" + catalogTrackID
}
