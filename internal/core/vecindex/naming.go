package vecindex

import "strings"

// ModelNameAsPath はモデル識別子をリソース名に安全な形式へ変換する
// 英数字とドット・ハイフン以外の文字はアンダースコアに置き換える
// 例: facebook/contriever-msmarco -> facebook_contriever-msmarco
func ModelNameAsPath(modelName string) string {
	var b strings.Builder
	b.Grow(len(modelName))
	for _, r := range modelName {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// IndexDisplayName はモデル識別子からインデックス表示名を導出する
func IndexDisplayName(modelName string) string {
	return "index_" + ModelNameAsPath(modelName)
}

// EndpointDisplayName はモデル識別子からエンドポイント表示名を導出する
func EndpointDisplayName(modelName string) string {
	return "endpoint_" + ModelNameAsPath(modelName)
}
