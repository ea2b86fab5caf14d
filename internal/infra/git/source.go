package git

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-enry/go-enry/v2"
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	gitignore "github.com/sabhiram/go-gitignore"
	giturls "github.com/whilp/git-urls"

	"github.com/jinford/retriever/internal/core/corpus"
)

// maxFileBytes はコーパスに含める1ファイルの上限サイズ
const maxFileBytes = 1 * 1024 * 1024

// documentLanguages はコーパスとして採用する言語（go-enryの判定名）
var documentLanguages = map[string]struct{}{
	"Markdown":         {},
	"Text":             {},
	"AsciiDoc":         {},
	"reStructuredText": {},
	"Org":              {},
}

// Source はGitリポジトリの文書ファイルをパッセージとして読み込むcorpus.Source実装
// 1ファイルが1パッセージになり、IDはパスの辞書順で採番される
type Source struct {
	url      string
	ref      string
	cloneDir string
}

// NewSource は新しい Source を作成する
// refは省略時に呼び出し側でデフォルトブランチを渡すこと
func NewSource(url, ref, cloneDir string) *Source {
	return &Source{
		url:      url,
		ref:      ref,
		cloneDir: cloneDir,
	}
}

// Name はGit URLから導出したソース名を返す
// 例: git@github.com:user/repo.git -> github.com/user/repo
func (s *Source) Name() string {
	return RepoNameFromURL(s.url)
}

// RepoNameFromURL はGit URLをホスト名とパスからなるソース名に変換する
func RepoNameFromURL(rawURL string) string {
	u, err := giturls.Parse(rawURL)
	if err != nil {
		// パースに失敗した場合は元の文字列から .git を除去して返す
		return strings.TrimSuffix(rawURL, ".git")
	}
	path := strings.TrimSuffix(strings.Trim(u.Path, "/"), ".git")
	if u.Host == "" {
		return path
	}
	return u.Host + "/" + path
}

// Load はリポジトリをクローンまたは更新し、文書ファイルをパッセージとして返す
func (s *Source) Load(ctx context.Context) ([]*corpus.Passage, error) {
	repoPath := filepath.Join(s.cloneDir, strings.ReplaceAll(s.Name(), "/", "_"))

	if err := s.cloneOrPull(ctx, repoPath); err != nil {
		return nil, err
	}

	paths, err := s.listDocumentFiles(repoPath)
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	passages := make([]*corpus.Passage, 0, len(paths))
	for i, rel := range paths {
		content, err := os.ReadFile(filepath.Join(repoPath, rel))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", rel, err)
		}
		passages = append(passages, &corpus.Passage{
			ID:    i,
			Title: rel,
			Text:  string(content),
		})
	}
	return passages, nil
}

// cloneOrPull はリポジトリを新規クローンするか、既存クローンを最新化する
func (s *Source) cloneOrPull(ctx context.Context, repoPath string) error {
	_, err := gogit.PlainCloneContext(ctx, repoPath, false, &gogit.CloneOptions{
		URL:           s.url,
		ReferenceName: plumbing.NewBranchReferenceName(s.ref),
		SingleBranch:  true,
	})
	if err == nil {
		return nil
	}
	if !errors.Is(err, gogit.ErrRepositoryAlreadyExists) {
		return fmt.Errorf("failed to clone %s: %w", s.url, err)
	}

	repo, err := gogit.PlainOpen(repoPath)
	if err != nil {
		return fmt.Errorf("failed to open existing clone: %w", err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	err = worktree.PullContext(ctx, &gogit.PullOptions{
		ReferenceName: plumbing.NewBranchReferenceName(s.ref),
		SingleBranch:  true,
	})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return fmt.Errorf("failed to pull %s: %w", s.url, err)
	}
	return nil
}

// listDocumentFiles はコーパスに含めるファイルの相対パス一覧を返す
func (s *Source) listDocumentFiles(repoPath string) ([]string, error) {
	ignorer := loadIgnoreFile(repoPath)

	var paths []string
	err := filepath.WalkDir(repoPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == gogit.GitDirName {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(repoPath, path)
		if err != nil {
			return err
		}
		if ignorer != nil && ignorer.MatchesPath(rel) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() > maxFileBytes {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			// 読めないファイルはスキップ
			return nil
		}
		if !IsDocumentFile(rel, content) {
			return nil
		}

		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk repository: %w", err)
	}
	return paths, nil
}

// IsDocumentFile はファイルをコーパスに含めるべきかを判定する
// バイナリ・ベンダー・生成物は除外し、文書系の言語のみ採用する
func IsDocumentFile(path string, content []byte) bool {
	if enry.IsBinary(content) {
		return false
	}
	if enry.IsVendor(path) || enry.IsDotFile(path) {
		return false
	}
	if enry.IsGenerated(path, content) {
		return false
	}

	lang := enry.GetLanguage(filepath.Base(path), content)
	_, ok := documentLanguages[lang]
	return ok
}

func loadIgnoreFile(repoPath string) *gitignore.GitIgnore {
	ignorePath := filepath.Join(repoPath, ".gitignore")
	if _, err := os.Stat(ignorePath); err != nil {
		return nil
	}
	ignorer, err := gitignore.CompileIgnoreFile(ignorePath)
	if err != nil {
		return nil
	}
	return ignorer
}

// インターフェース実装の確認
var _ corpus.Source = (*Source)(nil)
